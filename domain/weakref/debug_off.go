//go:build !weakrefdebug

package weakref

type gateDebug struct{}

func (gateDebug) enterFinalize()   {}
func (gateDebug) exitFinalize()    {}
func (gateDebug) finalizing() bool { return false }

func debugf(string, ...interface{}) {}

func assertf(bool, string) {}
