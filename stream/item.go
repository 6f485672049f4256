package stream

import "runtime"

// Item is a value carried by a stream. Size is the declared weight of the
// value in bytes and is used only for flush fairness accounting; negative
// sizes count as zero.
type Item interface {
	Size() int
}

// Yielder gives other runnable goroutines a chance to run before the flush
// loop forwards more already-available data.
type Yielder interface {
	Yield()
}

// YieldFunc adapts a function to the Yielder interface.
type YieldFunc func()

// Yield calls f.
func (f YieldFunc) Yield() { f() }

// Gosched is the default Yielder.
var Gosched Yielder = YieldFunc(runtime.Gosched)
