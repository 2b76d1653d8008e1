//go:build linux

package hal

import "golang.org/x/sys/unix"

func readBootTime() (sec, nsec int64, err error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return 0, 0, err
	}
	sec, nsec = ts.Unix()
	return sec, nsec, nil
}
