package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Callbacks receive the events of one streaming exchange. All fields are optional.
// Callbacks run on the goroutine that called Stream.
type Callbacks struct {
	OnChunk                    func(ctx context.Context, chunk string) error
	OnDone                     func(ctx context.Context) error
	OnCheckingAvailability     func(ctx context.Context) error
	OnDoneCheckingAvailability func(ctx context.Context) error
}

type exchange struct {
	frames chan Frame
	drop   chan error
	done   chan struct{}
	// stop is closed when the manager shuts down.
	stop <-chan struct{}
}

func newExchange(stop <-chan struct{}) *exchange {
	return &exchange{
		frames: make(chan Frame),
		drop:   make(chan error, 1),
		done:   make(chan struct{}),
		stop:   stop,
	}
}

// deliver hands a frame to the exchange loop. Unbuffered so that a later drop can never
// overtake frames read before it. Returns early once the manager is closed, so a Close
// issued from a callback does not wait on the read loop forever.
func (ex *exchange) deliver(f Frame) {
	select {
	case ex.frames <- f:
	case <-ex.done:
	case <-ex.stop:
	}
}

func (ex *exchange) dropped(cause error) {
	select {
	case ex.drop <- cause:
	default:
	}
}

// Stream sends text as a user message and dispatches the reply frames to cb until
// streamingDone, an error frame, or the connection closing.
//
// A drop before a terminal frame counts as completion. When no frame at all arrives within
// the first chunk timeout, Stream fails with a *TimeoutError.
func (m *Manager) Stream(ctx context.Context, text string, cb Callbacks) error {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()

	if err := m.EnsureConnected(ctx); err != nil {
		return err
	}

	ex := newExchange(m.baseCtx.Done())
	m.mu.Lock()
	m.exchange = ex
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		if m.exchange == ex {
			m.exchange = nil
		}
		m.mu.Unlock()
		close(ex.done)
	}()

	if err := m.send(Frame{Type: TypeClientSentMessage, Message: text}); err != nil {
		return err
	}
	m.logger.Debug().Int("length", len(text)).Msg("message sent")

	timer := time.NewTimer(m.firstChunkTimeout)
	defer timer.Stop()
	firstChunk := timer.C

	for {
		select {
		case f := <-ex.frames:
			if m.baseCtx.Err() != nil {
				m.logger.Debug().Msg("manager closed during exchange, treating as completion")
				return callDone(ctx, cb)
			}
			if firstChunk != nil {
				timer.Stop()
				firstChunk = nil
			}
			finished, err := m.dispatch(ctx, f, cb)
			if finished {
				return err
			}
		case cause := <-ex.drop:
			m.logger.Debug().Err(cause).Msg("connection closed during exchange, treating as completion")
			return callDone(ctx, cb)
		case <-firstChunk:
			m.logger.Error().Dur("after", m.firstChunkTimeout).Msg("server took too long to start the reply stream")
			return &TimeoutError{Op: OpStream, After: m.firstChunkTimeout}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, f Frame, cb Callbacks) (bool, error) {
	switch f.Type {
	case TypeFunctionCallBegin:
		if f.FunctionName == FunctionFetchRoomAvailability && cb.OnCheckingAvailability != nil {
			if err := cb.OnCheckingAvailability(ctx); err != nil {
				m.logger.Warn().Err(err).Msg("checking availability hook failed")
			}
		}
	case TypeFunctionCallEnd:
		if f.FunctionName == FunctionFetchRoomAvailability && cb.OnDoneCheckingAvailability != nil {
			if err := cb.OnDoneCheckingAvailability(ctx); err != nil {
				m.logger.Warn().Err(err).Msg("done checking availability hook failed")
			}
		}
	case TypeServerSentMessageChunk:
		if f.Message != "" && cb.OnChunk != nil {
			if err := cb.OnChunk(ctx, f.Message); err != nil {
				return true, errors.Wrap(err, "chunk sink")
			}
		}
	case TypeStreamingDone:
		return true, callDone(ctx, cb)
	case TypeError:
		m.logger.Warn().Str("message", f.Message).Msg("server reported an error")
		return true, &ServerError{Message: f.Message}
	default:
		m.logger.Debug().Str("type", f.Type).Msg("ignoring frame")
	}
	return false, nil
}

func callDone(ctx context.Context, cb Callbacks) error {
	if cb.OnDone == nil {
		return nil
	}
	return errors.Wrap(cb.OnDone(ctx), "done sink")
}
