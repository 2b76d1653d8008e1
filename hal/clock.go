package hal

import (
	"log/slog"

	"github.com/ruteri/tee-ta-bridge/interfaces"
	"go.uber.org/atomic"
)

// BootClock is a monotonic millisecond clock that includes time spent suspended.
type BootClock struct {
	read func() (sec, nsec int64, err error)
	last *atomic.Int64
	log  *slog.Logger
}

// NewBootClock returns a clock backed by the platform boot-time clock.
func NewBootClock(log *slog.Logger) *BootClock {
	return newBootClock(readBootTime, log)
}

func newBootClock(read func() (sec, nsec int64, err error), log *slog.Logger) *BootClock {
	return &BootClock{
		read: read,
		last: atomic.NewInt64(0),
		log:  log,
	}
}

// Now returns milliseconds since boot. If the clock cannot be read it logs a
// warning and returns 0, which callers treat as "time unknown".
func (c *BootClock) Now() interfaces.Milliseconds {
	sec, nsec, err := c.read()
	if err != nil {
		c.log.Warn("Failed to read boot clock", "err", err)
		return 0
	}

	now := sec*1000 + nsec/1_000_000
	for {
		last := c.last.Load()
		if now <= last {
			return interfaces.Milliseconds(last)
		}
		if c.last.CompareAndSwap(last, now) {
			return interfaces.Milliseconds(now)
		}
	}
}
