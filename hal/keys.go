package hal

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/ruteri/tee-ta-bridge/interfaces"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of every key handed out by this package.
const KeySize = 32

const (
	passwordKeyInfo  = "gatekeeper nonsecure password key"
	authKeyInfo      = "gatekeeper nonsecure auth key"
	presharedKeyInfo = "gatekeeper nonsecure preshared key"
)

// NonsecurePasswordKey hands out a password-signing key held in memory.
type NonsecurePasswordKey struct {
	key []byte
}

// NewNonsecurePasswordKey returns a password key source. A nil key means the
// all-zero key.
func NewNonsecurePasswordKey(key []byte) *NonsecurePasswordKey {
	if key == nil {
		key = make([]byte, KeySize)
	}
	return &NonsecurePasswordKey{key: bytes.Clone(key)}
}

func (k *NonsecurePasswordKey) Key() (interfaces.KeyMaterial, error) {
	return interfaces.ExplicitKey(bytes.Clone(k.key)), nil
}

// ExplicitAuthKey hands out the key used to MAC auth tokens until a shared
// secret has been negotiated.
type ExplicitAuthKey struct {
	key []byte
}

// NewExplicitAuthKey generates a fresh random auth key.
func NewExplicitAuthKey(rng interfaces.RandomSource) *ExplicitAuthKey {
	key := make([]byte, KeySize)
	rng.FillBytes(key)
	return &ExplicitAuthKey{key: key}
}

// ExplicitAuthKeyFrom wraps an existing auth key.
func ExplicitAuthKeyFrom(key []byte) *ExplicitAuthKey {
	return &ExplicitAuthKey{key: bytes.Clone(key)}
}

func (k *ExplicitAuthKey) Key() (interfaces.KeyMaterial, error) {
	return interfaces.ExplicitKey(bytes.Clone(k.key)), nil
}

// FixedPresharedKey is a preshared key compiled in or passed on the command line.
type FixedPresharedKey []byte

// ZeroPresharedKey is the all-zero key software peers use for shared-secret agreement.
func ZeroPresharedKey() FixedPresharedKey {
	return make(FixedPresharedKey, KeySize)
}

func (k FixedPresharedKey) Key() (interfaces.KeyMaterial, error) {
	if len(k) == 0 {
		return nil, fmt.Errorf("%w: empty preshared key", interfaces.ErrInternal)
	}
	return interfaces.ExplicitKey(bytes.Clone(k)), nil
}

// NonsecureKeys is a deterministic key set derived from a seed.
type NonsecureKeys struct {
	Password  []byte
	Auth      []byte
	Preshared []byte
}

// DeriveNonsecureKeys expands seed into independent keys with HKDF-SHA256.
// The same seed always produces the same keys, so password handles survive restarts.
func DeriveNonsecureKeys(seed []byte) (*NonsecureKeys, error) {
	if len(seed) < KeySize {
		return nil, errors.New("seed must be at least 32 bytes")
	}

	keys := &NonsecureKeys{}
	for _, target := range []struct {
		info string
		out  *[]byte
	}{
		{passwordKeyInfo, &keys.Password},
		{authKeyInfo, &keys.Auth},
		{presharedKeyInfo, &keys.Preshared},
	} {
		key := make([]byte, KeySize)
		if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte(target.info)), key); err != nil {
			return nil, fmt.Errorf("failed to derive %s: %w", target.info, err)
		}
		*target.out = key
	}
	return keys, nil
}
