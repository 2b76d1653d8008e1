package hal

import "crypto/rand"

// StdRng reads from the operating system's CSPRNG.
type StdRng struct{}

// FillBytes fills dest with random bytes. crypto/rand.Read never fails on
// supported platforms; the process crashes if the kernel source is unusable.
func (StdRng) FillBytes(dest []byte) {
	_, _ = rand.Read(dest)
}
