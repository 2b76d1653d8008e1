package hal

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/shamir"
	"github.com/ruteri/tee-ta-bridge/interfaces"
)

var (
	// ErrShareIndexTaken is returned when a share was already submitted under the index.
	ErrShareIndexTaken = errors.New("share index already submitted")

	// ErrDuplicateShare is returned when the same share arrives under a second index.
	ErrDuplicateShare = errors.New("share already submitted under another index")
)

// ShamirPresharedKey is a preshared key that is never configured in one piece.
// Operators each hold a Shamir share; once threshold shares have been submitted
// the key is reconstructed and kept only in memory.
type ShamirPresharedKey struct {
	mu             sync.RWMutex
	key            []byte         // reconstructed key, nil while locked
	threshold      int            // minimum number of shares needed
	receivedShares map[int][]byte // shares collected so far, wiped after reconstruction
}

// NewShamirPresharedKey creates a locked key that needs threshold shares.
func NewShamirPresharedKey(threshold int) (*ShamirPresharedKey, error) {
	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	return &ShamirPresharedKey{
		threshold:      threshold,
		receivedShares: make(map[int][]byte),
	}, nil
}

// SplitPresharedKey splits key into parts shares, any threshold of which reconstruct it.
func SplitPresharedKey(key []byte, parts, threshold int) ([][]byte, error) {
	if len(key) < KeySize {
		return nil, errors.New("preshared key must be at least 32 bytes")
	}
	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	if parts < threshold {
		return nil, errors.New("total shares must be at least equal to threshold")
	}

	shares, err := shamir.Split(key, parts, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split preshared key: %w", err)
	}
	return shares, nil
}

// SubmitShare records a share. When threshold shares are present the key is
// reconstructed and the shares are wiped. A share that fails reconstruction is
// dropped again, leaving the earlier shares in place.
func (k *ShamirPresharedKey) SubmitShare(shareIndex int, share []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.key != nil {
		return errors.New("preshared key is already reconstructed")
	}
	if len(share) < 2 {
		return errors.New("share is too short")
	}
	if _, taken := k.receivedShares[shareIndex]; taken {
		return fmt.Errorf("%w: %d", ErrShareIndexTaken, shareIndex)
	}
	// The trailing byte is the share's x coordinate.
	for _, existing := range k.receivedShares {
		if existing[len(existing)-1] == share[len(share)-1] {
			return ErrDuplicateShare
		}
	}

	k.receivedShares[shareIndex] = append([]byte(nil), share...)
	if err := k.tryReconstruct(); err != nil {
		wipeBytes(k.receivedShares[shareIndex])
		delete(k.receivedShares, shareIndex)
		return err
	}
	return nil
}

func (k *ShamirPresharedKey) tryReconstruct() error {
	if len(k.receivedShares) < k.threshold {
		return nil
	}

	shares := make([][]byte, 0, len(k.receivedShares))
	for _, share := range k.receivedShares {
		shares = append(shares, share)
	}

	key, err := shamir.Combine(shares)
	if err != nil {
		return fmt.Errorf("failed to reconstruct preshared key: %w", err)
	}
	k.key = key

	for i := range k.receivedShares {
		wipeBytes(k.receivedShares[i])
	}
	k.receivedShares = make(map[int][]byte)
	return nil
}

// IsUnlocked reports whether enough shares were submitted to reconstruct the key.
func (k *ShamirPresharedKey) IsUnlocked() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.key != nil
}

// Key returns the reconstructed key, or ErrInternal while still locked.
func (k *ShamirPresharedKey) Key() (interfaces.KeyMaterial, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.key == nil {
		return nil, fmt.Errorf("%w: preshared key is locked, need more shares", interfaces.ErrInternal)
	}
	return interfaces.ExplicitKey(append([]byte(nil), k.key...)), nil
}

func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
