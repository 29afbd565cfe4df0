// Package clock provides the runtime's monotonic nanosecond clock.
// time.Now is already monotonic on every platform Go supports, so this
// just pins an epoch at process start and reports elapsed nanoseconds
// against it, keeping every timestamp in the runtime (start times,
// accumulated runtime, deadlines) a plain uint64.
package clock

import "time"

var epoch = time.Now()

// Now returns nanoseconds elapsed since the package was initialized.
func Now() uint64 {
	return uint64(time.Since(epoch).Nanoseconds())
}

// Deadline converts a relative duration (in milliseconds) to an absolute
// deadline expressed in the same nanosecond clock as Now.
func Deadline(ms int64) uint64 {
	return Now() + uint64(ms*int64(time.Millisecond))
}
