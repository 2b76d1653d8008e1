package ta

import (
	"bytes"
	"fmt"

	"github.com/ruteri/tee-ta-bridge/interfaces"
)

var (
	sharedMacLabel    = []byte("KeymasterSharedMac")
	sharingCheckLabel = []byte("Keymaster HMAC Verification")
)

const sharedMacKeySize = 32

func (gk *Gatekeeper) getSharedSecretParameters() (any, error) {
	if gk.sharedParams == nil {
		return nil, &statusError{status: StatusUnimplemented, msg: "shared secret agreement is not available"}
	}
	return GetSharedSecretParametersResponse{
		Params: SharedSecretParameters{
			Seed:  bytes.Clone(gk.sharedParams.Seed),
			Nonce: bytes.Clone(gk.sharedParams.Nonce),
		},
	}, nil
}

// computeSharedSecret derives the shared HMAC key from the preshared key and
// every participant's parameters, in the order given. All participants that
// see the same list derive the same key and return the same sharing check.
func (gk *Gatekeeper) computeSharedSecret(req *Request) (any, error) {
	ss := gk.imp.SharedSecret
	if ss == nil || gk.sharedParams == nil {
		return nil, &statusError{status: StatusUnimplemented, msg: "shared secret agreement is not available"}
	}

	var compute ComputeSharedSecretRequest
	if err := decodeBody(req.Body, &compute); err != nil {
		return nil, err
	}

	var (
		context []byte
		found   bool
	)
	for _, params := range compute.Params {
		if bytes.Equal(params.Seed, gk.sharedParams.Seed) && bytes.Equal(params.Nonce, gk.sharedParams.Nonce) {
			found = true
		}
		context = append(context, params.Seed...)
		context = append(context, params.Nonce...)
	}
	if !found {
		return nil, invalidArgument("own shared secret parameters not in list")
	}

	preshared, err := ss.PresharedKey.Key()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve preshared key: %w", err)
	}
	derived, err := ss.Derive.Derive(preshared, sharedMacLabel, context, sharedMacKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared key: %w", err)
	}

	key := interfaces.ExplicitKey(derived)
	check, err := gk.imp.HMAC.Sign(key, sharingCheckLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to compute sharing check: %w", err)
	}
	gk.negotiatedKey = key

	return ComputeSharedSecretResponse{SharingCheck: check}, nil
}
