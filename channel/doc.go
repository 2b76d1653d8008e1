// Package channel carries requests from any number of goroutines to a TA engine
// that must only ever run on one.
//
// LocalTA owns a single goroutine which constructs the engine and then loops:
// receive a request, run Engine.Process, send the response. Execute takes a
// mutex for the whole send/receive exchange, so callers are served one at a time
// in the order they acquire it and each caller receives the response to its own
// request.
//
// If the TA goroutine dies the channel is faulted. The engine's state is unknown
// at that point, so the default fault handler terminates the process instead of
// letting the service continue.
package channel
