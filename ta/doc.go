// Package ta contains a reference Gatekeeper engine that runs behind the
// serialized channel.
//
// The engine enrolls and verifies passwords, keeps per-user failure records in
// the injected FailureStore and negotiates an HMAC key with peer services
// through the shared-secret protocol. It only touches the outside world through
// the capability bundle it is constructed with.
//
// Messages are CBOR maps with integer keys. Every request is a Request envelope
// naming a Command; every response is a Response envelope carrying a Status.
// Malformed input produces a StatusInvalidArgument response, never a panic.
package ta
