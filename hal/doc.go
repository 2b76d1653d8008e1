// Package hal provides software implementations of the capabilities a TA engine
// is built from, and assembles them into an interfaces.Implementation.
//
// None of these backends are secure. Keys live in process memory, failure records
// live wherever the configured store puts them, and the clock is the host's. They
// exist so the bridge and the engine can be exercised outside a trusted environment.
//
// # Backends
//
//   - StdRng: crypto/rand
//   - BootClock: CLOCK_BOOTTIME on Linux, which keeps counting while suspended
//   - ConstEq: constant-time byte comparison
//   - HmacSha256: HMAC-SHA256 over explicit keys
//   - NonsecurePasswordKey, ExplicitAuthKey, FixedPresharedKey: in-memory keys
//   - CounterModeKDF: SP 800-108 counter mode KDF with an HMAC-SHA256 PRF
//   - ShamirPresharedKey: preshared key reconstructed from Shamir shares
//
// BuildNonsecure is the single place where these are put together.
package hal
