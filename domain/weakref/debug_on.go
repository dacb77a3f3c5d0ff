//go:build weakrefdebug

package weakref

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var debugLog = logrus.WithField("component", "weakref")

// gateDebug remembers which goroutine is running Finalize, so that only
// re-entry from that goroutine is reported. Observers on other
// goroutines racing the teardown just fail to promote.
type gateDebug struct {
	finalizer atomic.Uint64
}

func (d *gateDebug) enterFinalize() { d.finalizer.Store(goroutineID()) }
func (d *gateDebug) exitFinalize()  { d.finalizer.Store(0) }

func (d *gateDebug) finalizing() bool {
	id := d.finalizer.Load()
	return id != 0 && id == goroutineID()
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the current goroutine's ID from its stack header.
// It is slow and only compiled into debug builds.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		panic("weakref: cannot parse goroutine id: " + err.Error())
	}
	return id
}

func debugf(format string, args ...interface{}) {
	debugLog.Debugf(format, args...)
}

func assertf(cond bool, msg string) {
	if !cond {
		debugLog.Error(msg)
		panic(msg)
	}
}
