// Package session holds the canonical authentication state for an embedding
// application and exposes the operations that transition it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/target/mmk-auth/internal/domain/auth"
	"github.com/target/mmk-auth/internal/observability/metrics"
	"github.com/target/mmk-auth/internal/observability/statsd"
	"github.com/target/mmk-auth/internal/ports"
	"github.com/target/mmk-auth/internal/pubsub"
)

// Fallback messages used when a failed operation carries no message of its own.
const (
	MsgSignInFailed  = "Sign in failed"
	MsgSignUpFailed  = "Sign up failed"
	MsgSignOutFailed = "Sign out failed"
)

const (
	opSignIn  = "sign_in"
	opSignUp  = "sign_up"
	opSignOut = "sign_out"
)

var errAborted = errors.New("")

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for state transitions.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics emits a count and a timing per operation to sink.
func WithMetrics(sink statsd.Sink) Option {
	return func(m *Manager) { m.metrics = sink }
}

// Manager owns the session State. Operations never return errors; failures
// are recorded in State.Error. It is safe for concurrent use.
//
// Concurrent operations are not serialized: the last one to complete decides
// User and Error. IsLoading stays true until every in-flight operation ends.
type Manager struct {
	svc     ports.AuthService
	logger  *slog.Logger
	metrics statsd.Sink

	mu       sync.Mutex
	user     *domainauth.User
	inflight int
	errMsg   string
	closed   bool
	pushed   bool

	unsubscribe func()
	closeOnce   sync.Once

	observers *pubsub.Registry[domainauth.State]
}

// NewManager subscribes to out-of-band session changes and seeds the state
// from svc.CurrentUser. A push that lands while seeding wins over the seed.
// Call Close to release the subscription.
func NewManager(svc ports.AuthService, opts ...Option) *Manager {
	m := &Manager{
		svc:       svc,
		logger:    slog.Default(),
		observers: pubsub.NewRegistry[domainauth.State](),
	}
	for _, opt := range opts {
		opt(m)
	}

	unsubscribe := svc.OnAuthStateChanged(m.applyPush)
	current := svc.CurrentUser()

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	if !m.pushed {
		m.user = current
	}
	m.mu.Unlock()
	return m
}

// State returns a snapshot of the current session state.
func (m *Manager) State() domainauth.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe registers fn for every state transition. The returned disposer
// is idempotent. Across goroutines delivery order is not guaranteed; State
// is always the latest value. fn may call back into the Manager, including
// Close and its own disposer.
func (m *Manager) Subscribe(fn func(domainauth.State)) (unsubscribe func()) {
	return m.observers.Subscribe(fn)
}

// SignIn authenticates with the backend and records the outcome in State.
func (m *Manager) SignIn(ctx context.Context, email, password string) {
	m.run(ctx, opSignIn, MsgSignInFailed, func(ctx context.Context) (*domainauth.User, error) {
		u, err := m.svc.SignIn(ctx, email, password)
		if err != nil {
			return nil, err
		}
		return &u, nil
	})
}

// SignUp registers a new account and records the outcome in State.
func (m *Manager) SignUp(ctx context.Context, email, password string) {
	m.run(ctx, opSignUp, MsgSignUpFailed, func(ctx context.Context) (*domainauth.User, error) {
		u, err := m.svc.SignUp(ctx, email, password)
		if err != nil {
			return nil, err
		}
		return &u, nil
	})
}

// SignOut ends the session. On failure User is left unchanged.
func (m *Manager) SignOut(ctx context.Context) {
	m.run(ctx, opSignOut, MsgSignOutFailed, func(ctx context.Context) (*domainauth.User, error) {
		return nil, m.svc.SignOut(ctx)
	})
}

// Close releases the out-of-band subscription exactly once. After Close the
// state no longer changes.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		unsubscribe := m.unsubscribe
		m.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
	})
}

func (m *Manager) run(ctx context.Context, op, fallback string, call func(context.Context) (*domainauth.User, error)) {
	if !m.begin() {
		return
	}

	start := time.Now()
	var (
		user     *domainauth.User
		err      error
		finished bool
	)
	defer func() {
		if !finished {
			err = errAborted
		}
		m.complete(op, fallback, user, err, time.Since(start))
	}()

	user, err = call(ctx)
	finished = true
}

func (m *Manager) begin() bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.inflight++
	m.errMsg = ""
	st := m.snapshotLocked()
	m.mu.Unlock()

	m.observers.Publish(st)
	return true
}

func (m *Manager) complete(op, fallback string, user *domainauth.User, err error, elapsed time.Duration) {
	m.mu.Lock()
	if m.inflight > 0 {
		m.inflight--
	}
	if m.closed {
		m.mu.Unlock()
		return
	}
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = fallback
		}
		m.errMsg = msg
	} else {
		m.user = user
	}
	st := m.snapshotLocked()
	m.mu.Unlock()

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		m.logger.Warn("session operation failed", "operation", op, "error", st.Error)
	} else {
		m.logger.Debug("session operation completed", "operation", op, "authenticated", st.IsAuthenticated())
	}
	metrics.EmitAuthOperation(m.metrics, metrics.OperationMetric{
		Operation: op,
		Result:    result,
		Duration:  elapsed,
		Err:       err,
	})

	m.observers.Publish(st)
}

func (m *Manager) applyPush(u *domainauth.User) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.user = u
	m.pushed = true
	st := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Debug("session changed out of band", "authenticated", st.IsAuthenticated())
	metrics.EmitStateChange(m.metrics, st.IsAuthenticated())
	m.observers.Publish(st)
}

func (m *Manager) snapshotLocked() domainauth.State {
	return domainauth.State{
		User:      m.user,
		IsLoading: m.inflight > 0,
		Error:     m.errMsg,
	}
}
