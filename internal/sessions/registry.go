package sessions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/internal/checkout"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
)

const (
	defaultIdleTTL  = 2 * time.Hour
	defaultInterval = 5 * time.Minute

	reasonIdle   = "idle"
	reasonLogout = "logout"
)

// CartFactory builds the cart orchestrator of a new session.
type CartFactory func(sessionID string) (*cart.Orchestrator, error)

// FlowFactory builds a checkout flow bound to the session's cart.
type FlowFactory func(sessionID string, source checkout.CartSource) (*checkout.Flow, error)

// Config configures the registry.
type Config struct {
	NewCart  CartFactory
	NewFlow  FlowFactory
	IdleTTL  time.Duration
	Interval time.Duration
	Logger   *logger.Logger
	Metrics  *metrics.SessionMetrics
}

// Registry holds the live state of every storefront session served by this instance.
// Sessions are created on first use and evicted after IdleTTL without requests.
type Registry struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// Session is the per-browser state: one cart orchestrator and at most one checkout flow.
type Session struct {
	ID   string
	Cart *cart.Orchestrator

	newFlow  FlowFactory
	mu       sync.Mutex
	flow     *checkout.Flow
	customer string
	lastSeen time.Time
}

// NewRegistry validates the factories and applies defaults.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.NewCart == nil {
		return nil, fmt.Errorf("cart factory required")
	}
	if cfg.NewFlow == nil {
		return nil, fmt.Errorf("flow factory required")
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Registry{cfg: cfg, now: time.Now, sessions: map[string]*Session{}}, nil
}

// Get returns the session, creating it on first use, and marks it as seen.
func (r *Registry) Get(sessionID string) (*Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "storefront session id is required")
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[sessionID]; ok {
		sess.touch(now)
		return sess, nil
	}
	orchestrator, err := r.cfg.NewCart(sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create session cart")
	}
	sess := &Session{ID: sessionID, Cart: orchestrator, newFlow: r.cfg.NewFlow, lastSeen: now}
	r.sessions[sessionID] = sess
	r.cfg.Metrics.SetActive(len(r.sessions))
	return sess, nil
}

// Attach returns the session with its cart aligned to the caller's authentication. Every
// request handler goes through it so login and logout are noticed on the next call.
func (r *Registry) Attach(ctx context.Context, sessionID string, auth checkout.Auth) (*Session, cart.State, error) {
	sess, err := r.Get(sessionID)
	if err != nil {
		return nil, cart.State{}, err
	}
	state, err := sess.SyncAuth(ctx, auth)
	return sess, state, err
}

// Logout drops the checkout flow and returns the cart to the guest strategy. The session
// itself stays so the browser keeps its guest cart.
func (r *Registry) Logout(ctx context.Context, sessionID string) (cart.State, error) {
	r.mu.Lock()
	sess, ok := r.sessions[strings.TrimSpace(sessionID)]
	r.mu.Unlock()
	if !ok {
		return cart.State{}, nil
	}
	sess.dropFlow()
	sess.mu.Lock()
	sess.customer = ""
	sess.mu.Unlock()
	r.cfg.Metrics.IncEvicted(reasonLogout, 1)
	return sess.Cart.SyncAuth(ctx, false, "")
}

// Len reports how many sessions are held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than IdleTTL and returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	var expired []*Session
	r.mu.Lock()
	for id, sess := range r.sessions {
		if now.Sub(sess.seen()) > r.cfg.IdleTTL {
			expired = append(expired, sess)
			delete(r.sessions, id)
		}
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	for _, sess := range expired {
		sess.dropFlow()
	}
	r.cfg.Metrics.SetActive(remaining)
	r.cfg.Metrics.IncEvicted(reasonIdle, len(expired))
	return len(expired)
}

// Run sweeps on a fixed cadence until the context is canceled.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := r.Sweep(r.now()); n > 0 && r.cfg.Logger != nil {
				r.cfg.Logger.Info(r.cfg.Logger.WithField(ctx, "evicted", n), "sessions.swept")
			}
		}
	}
}

// SyncAuth aligns the cart with the caller's authentication. A flow prefilled for one
// customer is discarded when another customer (or nobody) takes over the session; a guest
// flow is kept so typed data survives login.
func (s *Session) SyncAuth(ctx context.Context, auth checkout.Auth) (cart.State, error) {
	customer := ""
	if auth.Authenticated {
		customer = auth.CustomerID
	}
	s.mu.Lock()
	changed := s.customer != "" && s.customer != customer
	s.customer = customer
	s.mu.Unlock()
	if changed {
		s.dropFlow()
	}
	return s.Cart.SyncAuth(ctx, auth.Authenticated, auth.Token)
}

// Flow returns the session's checkout flow, creating it on first use.
func (s *Session) Flow() (*checkout.Flow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flow != nil {
		return s.flow, false, nil
	}
	flow, err := s.newFlow(s.ID, s.Cart)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create checkout flow")
	}
	s.flow = flow
	return flow, true, nil
}

// StartFlow returns the current flow, replacing it when the previous one already
// completed an order.
func (s *Session) StartFlow() (*checkout.Flow, bool, error) {
	s.mu.Lock()
	if s.flow != nil && s.flow.View().Completed {
		s.flow.Close()
		s.flow = nil
	}
	s.mu.Unlock()
	return s.Flow()
}

// EndFlow abandons the checkout flow. The next Flow call starts a fresh one.
func (s *Session) EndFlow() {
	s.dropFlow()
}

func (s *Session) dropFlow() {
	s.mu.Lock()
	flow := s.flow
	s.flow = nil
	s.mu.Unlock()
	if flow != nil {
		flow.Close()
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) seen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
