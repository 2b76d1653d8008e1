package hal

import (
	"crypto"
	"fmt"

	kdf "github.com/canonical/go-sp800.108-kdf"
	"github.com/ruteri/tee-ta-bridge/interfaces"
)

// CounterModeKDF is the NIST SP 800-108 counter mode KDF with HMAC-SHA256 as the PRF.
type CounterModeKDF struct{}

// Derive returns length bytes derived from key, label and context.
func (CounterModeKDF) Derive(key interfaces.KeyMaterial, label, context []byte, length int) ([]byte, error) {
	explicit, ok := key.(interfaces.ExplicitKey)
	if !ok {
		return nil, fmt.Errorf("%w: software KDF cannot use key material of type %T", interfaces.ErrInternal, key)
	}
	if length <= 0 || length > 1<<20 {
		return nil, fmt.Errorf("%w: invalid derived key length %d", interfaces.ErrInternal, length)
	}
	return kdf.CounterModeKey(kdf.NewHMACPRF(crypto.SHA256), explicit, label, context, uint32(length*8)), nil
}
