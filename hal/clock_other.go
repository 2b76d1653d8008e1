//go:build !linux

package hal

import "time"

// Outside Linux there is no boot-time clock to query; time since process start
// is monotonic but does not survive restarts. The clock starts at 1ms so that
// an early reading is never mistaken for the "unknown" value 0.
var processStart = time.Now()

const processStartOffset = time.Millisecond

func readBootTime() (sec, nsec int64, err error) {
	elapsed := time.Since(processStart) + processStartOffset
	return int64(elapsed / time.Second), int64(elapsed % time.Second), nil
}
