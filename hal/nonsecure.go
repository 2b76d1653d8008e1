package hal

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-ta-bridge/interfaces"
)

// NonsecureConfig selects the key material for BuildNonsecure.
type NonsecureConfig struct {
	// Seed derives the password, auth and preshared keys. When nil the password
	// and preshared keys are all-zero and the auth key is random per process.
	Seed []byte

	// Preshared overrides the preshared key, e.g. with a ShamirPresharedKey.
	Preshared interfaces.PresharedKey

	// DisableSharedSecret leaves SharedSecret nil so the engine rejects agreement requests.
	DisableSharedSecret bool
}

// BuildNonsecure assembles the software capability bundle around failures.
func BuildNonsecure(cfg NonsecureConfig, failures interfaces.FailureStore, log *slog.Logger) (*interfaces.Implementation, error) {
	log.Info("Building NON-SECURE Gatekeeper TA capabilities")

	if failures == nil {
		return nil, errors.New("a failure store is required")
	}

	rng := StdRng{}
	var (
		password  *NonsecurePasswordKey
		authKey   *ExplicitAuthKey
		preshared interfaces.PresharedKey
	)
	if cfg.Seed != nil {
		keys, err := DeriveNonsecureKeys(cfg.Seed)
		if err != nil {
			return nil, fmt.Errorf("failed to derive keys from seed: %w", err)
		}
		password = NewNonsecurePasswordKey(keys.Password)
		authKey = ExplicitAuthKeyFrom(keys.Auth)
		preshared = FixedPresharedKey(keys.Preshared)
	} else {
		password = NewNonsecurePasswordKey(nil)
		authKey = NewExplicitAuthKey(rng)
		preshared = ZeroPresharedKey()
	}
	if cfg.Preshared != nil {
		preshared = cfg.Preshared
	}

	imp := &interfaces.Implementation{
		Rng:      rng,
		Clock:    NewBootClock(log),
		Compare:  ConstEq{},
		HMAC:     HmacSha256{},
		Password: password,
		AuthKey:  authKey,
		Failures: failures,
	}
	if !cfg.DisableSharedSecret {
		imp.SharedSecret = &interfaces.SharedSecretImplementation{
			PresharedKey: preshared,
			Derive:       CounterModeKDF{},
		}
	}
	return imp, nil
}
