package compute

import (
	"fmt"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// tensorBuffer pairs a device buffer with the pool bucket it came from, so a
// handle can hand it back (or destroy it) without re-deriving usage and size.
type tensorBuffer struct {
	buf  *wgpu.Buffer
	kind bufferKind
	size uint64
}

func (t tensorBuffer) valid() bool { return t.buf != nil }

// awaitMapped drives the device until done closes or the timeout fires. The
// timeout is what keeps Wait from hanging forever on a lost device: a wedged
// queue never closes done, so the caller gets an error instead.
func awaitMapped(poll func(), done <-chan struct{}, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		poll()
		select {
		case <-done:
			return nil
		case <-deadline:
			return fmt.Errorf("wait timed out after %s (device lost or wedged)", timeout)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
