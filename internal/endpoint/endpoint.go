// Package endpoint runs one side of a measurement session: the ack channel
// handshake, the media pipeline, the ack loops and the final report.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"firestige.xyz/framelat/internal/config"
	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/log"
	"firestige.xyz/framelat/internal/metrics"
	"firestige.xyz/framelat/internal/session"
	"firestige.xyz/framelat/internal/stats"
)

// Pipeline is the media path an endpoint drives. Start must not block; the
// pipeline calls the handler from its own threads until Stop returns.
type Pipeline interface {
	Start(ctx context.Context, h core.StageHandler) error
	Stop() error
	// Done is closed when the pipeline stops on its own (end of stream or
	// error) or after Stop.
	Done() <-chan struct{}
	Err() error
}

type ingestor interface {
	OnStageEvent(ev core.StageEvent) error
}

// failure latches the first fatal error and cancels the session with it.
type failure struct {
	mu     sync.Mutex
	err    error
	cancel context.CancelCauseFunc
}

func (f *failure) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return
	}
	f.err = err
	if f.cancel != nil {
		f.cancel(err)
	}
}

func (f *failure) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// stageHandler adapts an ingestor to the pipeline port. Fatal errors stop
// the session; recoverable ones are logged, unknown stages once per name.
func stageHandler(in ingestor, logger log.Logger, fail func(error)) core.StageHandler {
	var unknown sync.Map
	return core.StageHandlerFunc(func(ev core.StageEvent) {
		err := in.OnStageEvent(ev)
		switch {
		case err == nil:
		case core.IsFatal(err):
			logger.WithError(err).Errorf("fatal fault at %s, stopping session", ev.Stage)
			fail(err)
		case errors.Is(err, core.ErrUnknownStage):
			if _, seen := unknown.LoadOrStore(ev.Stage, struct{}{}); !seen {
				logger.WithError(err).Warn("ignoring stage")
			}
		default:
			logger.WithError(err).Debugf("stage event %s dropped", ev.Stage)
		}
	})
}

// report builds and renders the end-of-run statistics. An empty dataset is
// reported, not returned.
func report(state *session.State, cfg config.ReportConfig, out io.Writer, decorate func(*stats.Report)) (*stats.Report, error) {
	rep, err := stats.Build(state.Endpoint, state.Snapshot(), cfg.Percentiles)
	if err != nil && !errors.Is(err, core.ErrEmptyDataset) {
		return nil, fmt.Errorf("build report: %w", err)
	}
	if err != nil {
		state.Logger().WithError(err).Warn("no complete frames, statistics skipped")
	}
	rep.Session = state.ID.String()
	if decorate != nil {
		decorate(rep)
	}
	if out != nil {
		if err := rep.Render(out, cfg.Format); err != nil {
			return rep, fmt.Errorf("render report: %w", err)
		}
	}
	return rep, nil
}

// stopPipeline stops p and returns the first of its run error and its stop
// error.
func stopPipeline(p Pipeline, logger log.Logger) error {
	stopErr := p.Stop()
	if stopErr != nil {
		logger.WithError(stopErr).Warn("pipeline stop failed")
	}
	if err := p.Err(); err != nil {
		return err
	}
	return stopErr
}

func setStatus(endpoint core.Endpoint, status float64) {
	metrics.SessionStatus.WithLabelValues(string(endpoint)).Set(status)
}
