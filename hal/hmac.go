package hal

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/ruteri/tee-ta-bridge/interfaces"
)

// HmacSha256 signs with HMAC-SHA256. Only explicit keys are supported; there is
// no key store behind this implementation to resolve opaque references.
type HmacSha256 struct{}

// Sign returns HMAC-SHA256(key, data[0] || data[1] || ...).
func (HmacSha256) Sign(key interfaces.KeyMaterial, data ...[]byte) ([]byte, error) {
	explicit, ok := key.(interfaces.ExplicitKey)
	if !ok {
		return nil, fmt.Errorf("%w: software HMAC cannot use key material of type %T", interfaces.ErrInternal, key)
	}

	mac := hmac.New(sha256.New, explicit)
	for _, chunk := range data {
		mac.Write(chunk)
	}
	return mac.Sum(nil), nil
}
