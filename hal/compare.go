package hal

import "crypto/subtle"

// ConstEq compares byte slices in time that depends only on their lengths.
type ConstEq struct{}

func (ConstEq) Eq(left, right []byte) bool {
	return subtle.ConstantTimeCompare(left, right) == 1
}
