package channel

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/ruteri/tee-ta-bridge/interfaces"
	"github.com/ruteri/tee-ta-bridge/metrics"
	"go.uber.org/atomic"
)

// FaultHandler is called with an error wrapping interfaces.ErrChannelFault when
// the TA goroutine can no longer be reached. It normally does not return.
type FaultHandler func(err error)

// Option configures a LocalTA.
type Option func(*LocalTA)

// WithMaxSize limits the size of requests accepted by Execute.
func WithMaxSize(size int) Option {
	return func(ta *LocalTA) {
		ta.maxSize = size
	}
}

// WithFaultHandler replaces the default handler, which exits the process.
func WithFaultHandler(handler FaultHandler) Option {
	return func(ta *LocalTA) {
		ta.onFault = handler
	}
}

// LocalTA runs a TA engine in-process on a dedicated goroutine. It implements
// interfaces.SerializedChannel.
type LocalTA struct {
	mu   sync.Mutex
	in   chan []byte
	out  chan []byte
	done chan struct{}

	maxSize int
	onFault FaultHandler
	faulted *atomic.Bool
	served  *atomic.Uint64

	log *slog.Logger
}

var _ interfaces.SerializedChannel = (*LocalTA)(nil)

// NewLocalTA starts the TA goroutine. The engine is built by ctor on that
// goroutine and is never touched by any other.
func NewLocalTA(ctor interfaces.EngineConstructor, imp *interfaces.Implementation, log *slog.Logger, opts ...Option) *LocalTA {
	ta := &LocalTA{
		in:      make(chan []byte),
		out:     make(chan []byte),
		done:    make(chan struct{}),
		maxSize: math.MaxInt,
		faulted: atomic.NewBool(false),
		served:  atomic.NewUint64(0),
		log:     log,
	}
	ta.onFault = ta.exitOnFault
	for _, opt := range opts {
		opt(ta)
	}

	go ta.run(ctor, imp)
	return ta
}

func (ta *LocalTA) run(ctor interfaces.EngineConstructor, imp *interfaces.Implementation) {
	defer close(ta.done)
	defer func() {
		if r := recover(); r != nil {
			ta.log.Error("TA engine panicked", "panic", r)
			panic(r)
		}
	}()

	engine := ctor(imp)
	ta.log.Debug("TA engine started")

	for req := range ta.in {
		ta.out <- engine.Process(req)
	}
}

// Execute hands req to the engine and waits for its response. Concurrent calls
// are serialized; a call that has sent its request always waits for the response.
func (ta *LocalTA) Execute(req []byte) ([]byte, error) {
	if len(req) > ta.maxSize {
		metrics.RecordChannelRequest(metrics.StatusTooLarge)
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", interfaces.ErrRequestTooLarge, len(req), ta.maxSize)
	}

	metrics.ChannelWaiting.Inc()
	defer metrics.ChannelWaiting.Dec()

	waitStart := time.Now()
	ta.mu.Lock()
	defer ta.mu.Unlock()
	metrics.ChannelWaitDuration.Observe(time.Since(waitStart).Seconds())

	if ta.faulted.Load() {
		return nil, ta.fault("channel faulted by an earlier request")
	}

	// The engine may retain the request; it gets its own copy.
	data := bytes.Clone(req)
	if data == nil {
		data = []byte{}
	}

	processStart := time.Now()
	select {
	case ta.in <- data:
	case <-ta.done:
		return nil, ta.fault("TA goroutine exited before accepting the request")
	}

	select {
	case rsp := <-ta.out:
		metrics.ChannelProcessDuration.Observe(time.Since(processStart).Seconds())
		metrics.RecordChannelRequest(metrics.StatusSuccess)
		ta.served.Inc()
		return rsp, nil
	case <-ta.done:
		return nil, ta.fault("TA goroutine exited before responding")
	}
}

// MaxSize returns the largest request Execute accepts.
func (ta *LocalTA) MaxSize() int {
	return ta.maxSize
}

// Served returns the number of requests the engine has answered.
func (ta *LocalTA) Served() uint64 {
	return ta.served.Load()
}

// Faulted reports whether the TA goroutine has been lost.
func (ta *LocalTA) Faulted() bool {
	return ta.faulted.Load()
}

func (ta *LocalTA) fault(reason string) error {
	ta.faulted.Store(true)
	metrics.RecordChannelRequest(metrics.StatusFault)

	err := fmt.Errorf("%w: %s", interfaces.ErrChannelFault, reason)
	ta.onFault(err)
	return err
}

func (ta *LocalTA) exitOnFault(err error) {
	ta.log.Error("TA channel is broken, engine state is indeterminate; terminating", "err", err)
	os.Exit(1)
}
