package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/roomcast/telemetry"
)

// DefaultRetries is the crash-restart budget for one URL.
const DefaultRetries = 3

// Options tunes the manager. Retries is taken as given (0 disables
// restarts); a zero RetryDelay restarts immediately.
type Options struct {
	Retries        int
	RetryDelay     time.Duration
	RetryMaxDelay  time.Duration
	ResolveTimeout time.Duration
	History        History
	Logger         *slog.Logger
}

// Manager owns the play queue and the single streaming process.
type Manager struct {
	resolver Resolver
	runner   Runner
	opts     Options
	log      *slog.Logger

	mu          sync.Mutex
	queue       []string
	state       State
	pending     string // url being resolved or waiting to restart
	retriesLeft int
	session     *session
	chain       *chain
	lastDone    <-chan struct{}
	closed      bool

	wg sync.WaitGroup
}

// chain is one goroutine draining the queue. Stop detaches it; a later chain
// waits on prev so two processes never overlap.
type chain struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	prev   <-chan struct{}
}

type session struct {
	id            string
	url           string
	proc          Process
	startedAt     time.Time
	stopRequested bool
}

type outcome int

const (
	outcomeFinished outcome = iota
	outcomeCrashed
	outcomeStopped
)

// NewManager wires a manager around a resolver and a runner.
func NewManager(resolver Resolver, runner Runner, opts Options) *Manager {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		resolver: resolver,
		runner:   runner,
		opts:     opts,
		log:      logger.With(slog.String("component", "player")),
	}
}

// Enqueue appends url to the queue and starts playback when idle. It returns
// the url's 1-based queue position, or 0 if it is being started right away.
func (m *Manager) Enqueue(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		m.log.Warn("enqueue after close ignored", slog.String("url", url))
		return -1
	}
	m.queue = append(m.queue, url)
	telemetry.SetPlayerQueueDepth(len(m.queue))
	if m.chain != nil {
		return len(m.queue)
	}
	m.startChainLocked()
	return 0
}

func (m *Manager) startChainLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	c := &chain{ctx: ctx, cancel: cancel, done: make(chan struct{}), prev: m.lastDone}
	m.chain = c
	m.lastDone = c.done
	m.state = StateResolving
	m.wg.Add(1)
	go m.run(c)
}

// Stop terminates the current stream, waits for it to exit and empties the
// queue. Calling it while idle is a no-op. A Stop that overlaps another one
// still waits for the detached chain to be reaped before returning.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.queue = nil
	telemetry.SetPlayerQueueDepth(0)
	c, sess, last := m.chain, m.session, m.lastDone
	m.chain, m.session, m.pending = nil, nil, ""
	if sess != nil {
		sess.stopRequested = true
	}
	if c != nil {
		m.state = StateStopping
	}
	m.mu.Unlock()

	if c != nil {
		c.cancel()
		if sess != nil {
			if err := sess.proc.Terminate(); err != nil {
				m.log.Warn("terminate streamer", slog.Any("err", err), slog.String("session_id", sess.id))
			}
			<-sess.proc.Done()
			m.log.Info("playback stopped", slog.String("session_id", sess.id), slog.String("url", sess.url))
			m.record(sess.id, sess.url, EventStopped, "")
		}
		<-c.done
	}
	if last != nil {
		<-last
	}

	m.mu.Lock()
	if m.chain == nil {
		m.state = StateIdle
		telemetry.SetPlaying(false)
	}
	m.mu.Unlock()
}

// Close stops playback, rejects further enqueues and waits for background
// goroutines to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Stop()
	m.wg.Wait()
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot of the manager.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		State:       m.state.String(),
		NowPlaying:  m.pending,
		RetriesLeft: m.retriesLeft,
		Queue:       append([]string{}, m.queue...),
	}
	if m.session != nil {
		started := m.session.startedAt
		st.NowPlaying = m.session.url
		st.SessionID = m.session.id
		st.StartedAt = &started
	}
	return st
}

func (m *Manager) run(c *chain) {
	defer m.wg.Done()
	defer close(c.done)
	if c.prev != nil {
		<-c.prev
	}
	for {
		url, ok := m.next(c)
		if !ok {
			return
		}
		m.play(c, url)
	}
}

// next pops the front of the queue, or retires the chain when the queue is
// empty or the chain was detached by Stop.
func (m *Manager) next(c *chain) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chain != c {
		return "", false
	}
	if len(m.queue) == 0 {
		m.chain = nil
		m.pending = ""
		m.retriesLeft = 0
		m.state = StateIdle
		telemetry.SetPlaying(false)
		c.cancel()
		return "", false
	}
	url := m.queue[0]
	m.queue[0] = ""
	m.queue = m.queue[1:]
	m.pending = url
	m.retriesLeft = m.opts.Retries
	m.state = StateResolving
	telemetry.SetPlayerQueueDepth(len(m.queue))
	return url, true
}

// play streams one url, restarting it after crashes until the retry budget
// runs out.
func (m *Manager) play(c *chain, url string) {
	id := uuid.NewString()
	logger := m.log.With(slog.String("session_id", id), slog.String("url", url))
	retries := m.opts.Retries
	var bo *backoff.ExponentialBackOff
	if m.opts.RetryDelay > 0 {
		bo = backoff.NewExponentialBackOff()
		bo.InitialInterval = m.opts.RetryDelay
		bo.MaxInterval = m.opts.RetryMaxDelay
		bo.Reset()
	}

	for attempt := 0; ; attempt++ {
		src, err := m.resolve(c.ctx, url)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			class := resolveErrorClass(err)
			logger.Log(c.ctx, resolveLogLevel(class), "resolve failed; dropping url", slog.Any("err", err), slog.String("class", class.String()), slog.Int("attempt", attempt))
			telemetry.ResolveFailed()
			m.record(id, url, EventResolveFailed, err.Error())
			return
		}
		sess, err := m.spawn(c, id, url, src)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			logger.Warn("spawn failed; dropping url", slog.Any("err", err), slog.Int("attempt", attempt))
			telemetry.SpawnFailed()
			m.record(id, url, EventSpawnFailed, err.Error())
			return
		}
		if sess == nil {
			return
		}
		logger.Info("playback started", slog.Int("attempt", attempt), slog.Int("retries_left", retries))
		telemetry.PlayStarted()
		m.record(id, url, EventStarted, "")

		switch m.monitor(c, sess) {
		case outcomeStopped:
			return
		case outcomeFinished:
			logger.Info("playback finished", slog.Duration("duration", time.Since(sess.startedAt)))
			telemetry.PlayFinished()
			m.record(id, url, EventFinished, "")
			return
		}

		exitErr := sess.proc.Err()
		telemetry.ProcessCrashed()
		m.record(id, url, EventCrashed, exitErr.Error())
		if retries == 0 {
			logger.Warn("streamer crashed; retry budget exhausted, abandoning url", slog.Any("err", exitErr))
			telemetry.PlayAbandoned()
			m.record(id, url, EventAbandoned, exitErr.Error())
			return
		}
		retries--
		if !m.markRetrying(c, url, retries) {
			return
		}
		var delay time.Duration
		if bo != nil {
			delay = bo.NextBackOff()
		}
		logger.Warn("streamer crashed; restarting", slog.Any("err", exitErr), slog.Int("retries_left", retries), slog.Duration("backoff", delay))
		telemetry.PlayRetried()
		m.record(id, url, EventRetrying, exitErr.Error())
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-c.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
	}
}

// resolve applies the resolve timeout and wraps bare errors as ResolveError.
func (m *Manager) resolve(ctx context.Context, url string) (string, error) {
	if m.opts.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.ResolveTimeout)
		defer cancel()
	}
	ctx, span := telemetry.StartSpan(ctx, "player", "resolve", attribute.String("media.url", url))
	defer span.End()
	start := time.Now()
	src, err := m.resolver.Resolve(ctx, url)
	telemetry.ObserveResolve(time.Since(start))
	if err != nil {
		if !IsResolveError(err) {
			err = &ResolveError{URL: url, Class: ClassifyResolveError(err), Err: err}
		}
		telemetry.RecordError(span, err)
		return "", err
	}
	telemetry.SetSpanSuccess(span)
	return src, nil
}

// spawn starts the process and registers the session. A nil session with a
// nil error means Stop won the race and the process was already reaped.
func (m *Manager) spawn(c *chain, id, url, src string) (*session, error) {
	ctx, span := telemetry.StartSpan(c.ctx, "player", "spawn", attribute.String("session.id", id))
	defer span.End()
	proc, err := m.runner.Start(ctx, id, src)
	if err != nil {
		if !IsSpawnError(err) {
			err = &SpawnError{Source: src, Err: err}
		}
		telemetry.RecordError(span, err)
		return nil, err
	}
	sess := &session{id: id, url: url, proc: proc, startedAt: time.Now()}

	m.mu.Lock()
	if m.chain != c {
		m.mu.Unlock()
		_ = proc.Terminate()
		<-proc.Done()
		return nil, nil
	}
	m.session = sess
	m.pending = ""
	m.state = StatePlaying
	m.mu.Unlock()
	telemetry.SetPlaying(true)
	telemetry.SetSpanSuccess(span)
	return sess, nil
}

// monitor blocks until the process exits or the chain is canceled, then
// decides what the exit meant. The stop flag is read under the lock after
// waking so a concurrent Stop is never mistaken for a crash.
func (m *Manager) monitor(c *chain, sess *session) outcome {
	select {
	case <-sess.proc.Done():
	case <-c.ctx.Done():
		_ = sess.proc.Terminate()
		<-sess.proc.Done()
	}
	telemetry.ObserveSession(time.Since(sess.startedAt))

	m.mu.Lock()
	stopped := sess.stopRequested || m.chain != c
	if m.session == sess {
		m.session = nil
	}
	m.mu.Unlock()

	switch {
	case stopped:
		return outcomeStopped
	case sess.proc.Err() == nil:
		return outcomeFinished
	default:
		return outcomeCrashed
	}
}

// resolveLogLevel logs fatal failures (bad or removed URLs, a chat user's
// mistake) at info and everything else, which points at yt-dlp or the
// network, at warn.
func resolveLogLevel(class ErrorClass) slog.Level {
	if class == ErrorClassFatal {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

func (m *Manager) markRetrying(c *chain, url string, retriesLeft int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chain != c {
		return false
	}
	m.state = StateRetrying
	m.pending = url
	m.retriesLeft = retriesLeft
	telemetry.SetPlaying(false)
	return true
}

func (m *Manager) record(sessionID, url string, kind EventKind, detail string) {
	if m.opts.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev := Event{SessionID: sessionID, URL: url, Kind: kind, Detail: detail, At: time.Now().UTC()}
	if err := m.opts.History.Record(ctx, ev); err != nil {
		m.log.Warn("record play event", slog.Any("err", err), slog.String("event", string(kind)))
	}
}
