package interfaces

// Engine is a Trusted Application engine. It is safe only under sequential
// execution: Process must never be entered by two goroutines at once.
type Engine interface {
	// Process handles one opaque request and returns the opaque response.
	Process(request []byte) []byte
}

// EngineConstructor builds an engine from its capability bundle. It runs on the
// goroutine that will own the engine for its whole lifetime.
type EngineConstructor func(imp *Implementation) Engine

// SerializedChannel carries requests to an engine one at a time.
// Execute may be called concurrently; calls are delivered to the engine in the
// order they acquire the channel.
type SerializedChannel interface {
	// Execute sends req to the engine and blocks until its response is available.
	Execute(req []byte) ([]byte, error)

	// MaxSize is the largest request Execute accepts.
	MaxSize() int
}
