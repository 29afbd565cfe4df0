// Package trust is a small leveled logger: a mask of enabled levels,
// one non-maskable fatal path, and printf-style formatting, writing to
// an io.Writer (os.Stderr by default).
package trust

import (
	"fmt"
	"io"
	"os"
	"sync"
)

type MaskLevel int

const (
	Nothing   MaskLevel = 0x0
	ErrorMask MaskLevel = 0x1
	WarnMask  MaskLevel = 0x2
	InfoMask  MaskLevel = 0x4
	DebugMask MaskLevel = 0x8
	StatsMask MaskLevel = 0x10
	fatalMask MaskLevel = 0x80
)

var (
	mu     sync.Mutex
	level            = fatalMask | ErrorMask | WarnMask
	output io.Writer = os.Stderr
)

// SetOutput redirects all log output. Tests use this to capture logs.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// SetLevel sets the enabled mask directly and returns the previous one.
func SetLevel(mask MaskLevel) MaskLevel {
	mu.Lock()
	defer mu.Unlock()
	prev := level &^ fatalMask
	level = (mask & 0x1f) | fatalMask
	return prev
}

func Level() MaskLevel {
	mu.Lock()
	defer mu.Unlock()
	return level
}

func logf(l MaskLevel, format string, params ...interface{}) {
	mu.Lock()
	enabled := level&l != 0
	w := output
	mu.Unlock()
	if !enabled {
		return
	}
	prefix := ""
	switch {
	case l&fatalMask != 0:
		prefix = "FATAL:"
	case l&ErrorMask != 0:
		prefix = "ERROR:"
	case l&WarnMask != 0:
		prefix = " WARN:"
	case l&InfoMask != 0:
		prefix = " INFO:"
	case l&DebugMask != 0:
		prefix = "DEBUG:"
	case l&StatsMask != 0:
		prefix = "STATS:"
	}
	if len(format) == 0 || format[len(format)-1] != '\n' {
		format += "\n"
	}
	fmt.Fprintf(w, prefix+format, params...)
}

// Fatalf logs unconditionally then panics. The scheduler core uses this
// for invariant violations it cannot recover from.
func Fatalf(format string, params ...interface{}) {
	logf(fatalMask, format, params...)
	panic(fmt.Sprintf(format, params...))
}

func Errorf(format string, params ...interface{}) { logf(ErrorMask, format, params...) }
func Warnf(format string, params ...interface{})  { logf(WarnMask, format, params...) }
func Infof(format string, params ...interface{})  { logf(InfoMask, format, params...) }
func Debugf(format string, params ...interface{}) { logf(DebugMask, format, params...) }
func Statsf(format string, params ...interface{}) { logf(StatsMask, format, params...) }
