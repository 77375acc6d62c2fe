package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SyedDaiam9101/batch-worker/internal/envelope"
	"github.com/SyedDaiam9101/batch-worker/internal/frame"
	"github.com/SyedDaiam9101/batch-worker/internal/metrics"
)

var (
	ErrStopped        = errors.New("worker: stopped")
	ErrAlreadyRunning = errors.New("worker: already running")
)

// Processor answers one decoded batch. An error is fatal: Run returns it
// wrapped in a *FatalError instead of reconnecting.
type Processor interface {
	Process(ctx context.Context, req envelope.Request) (envelope.Response, error)
}

// FatalError reports a processing failure that ended Run.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "worker: fatal processing error: " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// connError is an I/O or framing failure on the current connection; it
// always leads to a reconnect.
type connError struct {
	op  string
	err error
}

func (e *connError) Error() string { return fmt.Sprintf("%s: %v", e.op, e.err) }

func (e *connError) Unwrap() error { return e.err }

// Worker runs the connect-handshake-serve loop against one front-end address.
type Worker struct {
	proc   Processor
	cfg    Config
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    net.Conn
	state   atomic.Int32
	running atomic.Bool
}

// New creates a Worker. It does not connect until Run.
func New(proc Processor, cfg Config) (*Worker, error) {
	if proc == nil {
		return nil, errors.New("worker: processor must not be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		proc:   proc,
		cfg:    cfg,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Stop ends Run: it closes the active socket, which fails any blocked read or
// write, and prevents reconnecting. Safe to call more than once and from any
// goroutine.
func (w *Worker) Stop() {
	if w.ctx.Err() == nil {
		w.logger.Info().Msg("stopping worker")
	}
	w.cancel()
	w.closeConn()
}

// Run dials addr and serves batches until Stop (returns nil), ctx cancellation
// (returns ctx.Err()) or a fatal processing error (returns *FatalError).
// Connection failures are retried indefinitely.
func (w *Worker) Run(ctx context.Context, transport Transport, addr string) error {
	if transport != Unix && transport != TCP {
		return fmt.Errorf("worker: unknown transport %q", transport)
	}
	if w.ctx.Err() != nil {
		return ErrStopped
	}
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopOnStop := context.AfterFunc(w.ctx, cancel)
	defer stopOnStop()
	closeOnDone := context.AfterFunc(runCtx, w.closeConn)
	defer closeOnDone()
	defer w.setState(StateStopped)

	logger := w.logger.With().Str("transport", string(transport)).Str("addr", addr).Logger()
	backoff := newReconnectBackoff(w.cfg.Backoff, rand.New(rand.NewSource(time.Now().UnixNano())))
	dialer := net.Dialer{Timeout: w.cfg.DialTimeout}

	for {
		if runCtx.Err() != nil {
			return w.exitErr(ctx)
		}

		w.setState(StateConnecting)
		conn, err := dialer.DialContext(runCtx, string(transport), addr)
		if err != nil {
			if runCtx.Err() != nil {
				return w.exitErr(ctx)
			}
			metrics.RecordDialFailure()
			if !w.wait(runCtx, logger, backoff, err) {
				return w.exitErr(ctx)
			}
			continue
		}

		served, err := w.session(runCtx, conn, logger)
		if runCtx.Err() != nil {
			return w.exitErr(ctx)
		}
		var fatal *FatalError
		if errors.As(err, &fatal) {
			return fatal
		}

		w.setState(StateDisconnected)
		metrics.RecordReconnect()
		logger.Warn().Err(err).Int("served", served).Msg("connection lost, reconnecting")
		if !backoff.sessionEnded(served) {
			continue
		}
		// Dropped before a single batch; back off so a flapping front-end does
		// not turn this into a busy loop.
		if !w.wait(runCtx, logger, backoff, err) {
			return w.exitErr(ctx)
		}
	}
}

// session runs handshake and serving on one connection and always closes it.
func (w *Worker) session(ctx context.Context, conn net.Conn, logger zerolog.Logger) (int, error) {
	if !w.attach(ctx, conn) {
		_ = conn.Close()
		return 0, &connError{op: "attach", err: ErrStopped}
	}
	defer w.detach(conn)

	logger = logger.With().Str("conn_id", uuid.New().String()).Logger()
	logger.Info().Str("peer", conn.RemoteAddr().String()).Msg("connected to batching front-end")

	w.setState(StateHandshaking)
	w.deadline(conn.SetWriteDeadline, w.cfg.WriteTimeout)
	if err := frame.WriteHandshake(conn); err != nil {
		return 0, &connError{op: "handshake", err: err}
	}
	logger.Info().Msg("sent init message")

	w.setState(StateServing)
	return w.serve(ctx, conn, logger)
}

func (w *Worker) serve(ctx context.Context, conn net.Conn, logger zerolog.Logger) (int, error) {
	served := 0
	for {
		w.deadline(conn.SetReadDeadline, w.cfg.ReadTimeout)
		data, err := frame.ReadFrame(conn, w.cfg.Limits)
		if err != nil {
			return served, &connError{op: "read", err: err}
		}
		if frame.IsHandshake(data) {
			logger.Debug().Msg("ignoring empty frame")
			continue
		}

		req, err := envelope.DecodeRequest(data)
		if err != nil {
			return served, &connError{op: "decode", err: err}
		}

		resp, err := w.proc.Process(ctx, req)
		if err != nil {
			return served, &FatalError{Err: err}
		}
		out, err := envelope.EncodeResponse(resp)
		if err != nil {
			return served, &FatalError{Err: err}
		}

		w.deadline(conn.SetWriteDeadline, w.cfg.WriteTimeout)
		if err := frame.WriteFrame(conn, out, w.cfg.Limits); err != nil {
			if errors.Is(err, frame.ErrFrameTooLarge) {
				return served, &FatalError{Err: err}
			}
			return served, &connError{op: "write", err: err}
		}
		served++
	}
}

// wait records a failed attempt and sleeps for its delay. It returns false if
// the run was cancelled meanwhile.
func (w *Worker) wait(ctx context.Context, logger zerolog.Logger, backoff *reconnectBackoff, cause error) bool {
	attempt, delay := backoff.failed()
	logger.Warn().Err(cause).Int("attempt", attempt).Dur("delay", delay).Msg("connect failed, retrying")
	w.setState(StateDisconnected)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) exitErr(ctx context.Context) error {
	if w.ctx.Err() != nil {
		return nil
	}
	return ctx.Err()
}

// attach publishes conn for closeConn. It refuses once the run is cancelled, so
// a connection dialed concurrently with Stop never outlives it.
func (w *Worker) attach(ctx context.Context, conn net.Conn) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ctx.Err() != nil || w.ctx.Err() != nil {
		return false
	}
	w.conn = conn
	return true
}

func (w *Worker) detach(conn net.Conn) {
	w.mu.Lock()
	if w.conn == conn {
		w.conn = nil
	}
	w.mu.Unlock()
	_ = conn.Close()
}

func (w *Worker) closeConn() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		_ = w.conn.Close()
	}
}

func (w *Worker) deadline(set func(time.Time) error, timeout time.Duration) {
	if timeout > 0 {
		_ = set(time.Now().Add(timeout))
	}
}

func (w *Worker) setState(s State) {
	if State(w.state.Swap(int32(s))) == s {
		return
	}
	metrics.SetConnectionState(int(s))
	w.logger.Debug().Str("state", s.String()).Msg("state change")
	if w.cfg.OnStateChange != nil {
		w.cfg.OnStateChange(s)
	}
}
