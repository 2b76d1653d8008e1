package interfaces

// Milliseconds is a monotonic timestamp in milliseconds. Zero means the time is unknown.
type Milliseconds int64

// Unknown reports whether the clock could not be read when the timestamp was taken.
func (ms Milliseconds) Unknown() bool {
	return ms == 0
}

// RandomSource produces cryptographically unpredictable bytes.
type RandomSource interface {
	// FillBytes fills dest with random bytes.
	FillBytes(dest []byte)
}

// MonotonicClock returns elapsed time including intervals where the system was suspended.
type MonotonicClock interface {
	// Now returns a non-decreasing timestamp, or 0 if the underlying clock could not be read.
	Now() Milliseconds
}

// ConstantTimeCompare compares secrets without leaking where they first differ.
type ConstantTimeCompare interface {
	Eq(left, right []byte) bool
}

// KeyMaterial is either explicit key bytes (ExplicitKey) or a reference to key material
// held elsewhere (OpaqueKey). Engines pass it through to KeyedHash without inspecting it.
type KeyMaterial interface {
	keyMaterial()
}

// ExplicitKey is key material available in memory.
type ExplicitKey []byte

func (ExplicitKey) keyMaterial() {}

// OpaqueKey references key material that never leaves the backend holding it.
type OpaqueKey struct {
	Ref []byte
}

func (OpaqueKey) keyMaterial() {}

// KeyedHash is a deterministic keyed digest over the concatenation of data.
type KeyedHash interface {
	Sign(key KeyMaterial, data ...[]byte) ([]byte, error)
}

// PasswordKeyRetrieval supplies the key used to sign password handles.
type PasswordKeyRetrieval interface {
	Key() (KeyMaterial, error)
}

// AuthKeyRetrieval supplies the key used to MAC authentication tokens.
type AuthKeyRetrieval interface {
	Key() (KeyMaterial, error)
}

// PresharedKey supplies the key shared with cooperating peer services.
type PresharedKey interface {
	Key() (KeyMaterial, error)
}

// KeyDerivation derives length bytes of key material from key, label and context.
type KeyDerivation interface {
	Derive(key KeyMaterial, label, context []byte, length int) ([]byte, error)
}

// SharedSecretImplementation groups the capabilities needed to agree on a shared
// secret with a peer service.
type SharedSecretImplementation struct {
	PresharedKey PresharedKey
	Derive       KeyDerivation
}

// Implementation is the capability bundle handed to a TA engine at construction.
// It is not mutated after construction. A nil SharedSecret disables shared-secret agreement.
type Implementation struct {
	Rng          RandomSource
	Clock        MonotonicClock
	Compare      ConstantTimeCompare
	HMAC         KeyedHash
	Password     PasswordKeyRetrieval
	AuthKey      AuthKeyRetrieval
	Failures     FailureStore
	SharedSecret *SharedSecretImplementation
}
