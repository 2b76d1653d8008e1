// Package interfaces defines the contracts between the serialized channel, the TA
// engine and the capability backends the engine is parameterized with.
//
// The TA engine only ever sees the abstract roles declared here, bundled in an
// Implementation. Concrete backends (the non-secure reference ones live in package hal,
// failure stores in package storage) are assembled once at the outermost layer and
// handed to the engine constructor, so secure and insecure builds share the engine.
//
// # Capability roles
//
//   - RandomSource: cryptographically unpredictable bytes
//   - MonotonicClock: non-decreasing milliseconds including suspend time, 0 when unknown
//   - ConstantTimeCompare: comparison independent of the first differing byte
//   - KeyedHash: deterministic keyed digest
//   - PasswordKeyRetrieval / AuthKeyRetrieval: explicit or opaque key material
//   - FailureStore: flat named-blob store for authentication failure records
//   - SharedSecretImplementation (optional): preshared key plus key derivation
//
// # Error Types
//
//   - ErrNotFound: a failure record does not exist (recoverable)
//   - ErrInternal: an I/O or system-call fault in a capability backend
//   - ErrChannelFault: the TA goroutine is unreachable (unrecoverable)
//   - ErrRequestTooLarge: a request exceeds the channel's maximum message size
package interfaces
