// Package synth is a synthetic media path for runs without GStreamer.
//
// The sender produces frames at a fixed rate with random encoded sizes,
// fires the pre/post-encode stage events around a simulated encode delay
// and ships each frame as RTP over UDP. The receiver reassembles frames,
// fires decode-sink, and a single decoder worker that always decodes the
// latest received frame fires decode-source and render. Frames that
// arrive while the worker is busy are never decoded, which mirrors a real
// decoder shedding backlog under jitter.
package synth

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"
)

// lifecycle tracks the goroutines of one started pipeline.
type lifecycle struct {
	wg     conc.WaitGroup
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}
	mu   sync.Mutex
	err  error
}

// finish records the terminal error, if any, and closes Done. Only the
// first call has an effect.
func (l *lifecycle) finish(err error) {
	l.once.Do(func() {
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		close(l.done)
	})
}

// Done is closed once the pipeline has stopped producing events.
func (l *lifecycle) Done() <-chan struct{} {
	return l.done
}

// Err returns the error that stopped the pipeline, nil on a normal end.
func (l *lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
