package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/goalgetter/goalgetter/internal/domain"
)

var (
	// ErrTooManyConnections means the user already holds the maximum number
	// of simultaneous connections.
	ErrTooManyConnections = errors.New("too many simultaneous connections")
	// ErrRateLimited means the user or client opened connections too quickly.
	ErrRateLimited = errors.New("connection rate limit exceeded")
)

// Conn is the transport side of one registered connection. The websocket
// handler wraps the real connection; tests substitute fakes.
type Conn interface {
	Send(ctx context.Context, v any) error
}

type connState struct {
	userID       string
	phase        domain.Phase
	sessionID    string
	connectedAt  time.Time
	messageCount int
}

// RegistryConfig bounds admission into the registry.
type RegistryConfig struct {
	MaxConnectionsPerUser int
	MaxAttempts           int
	AttemptWindow         time.Duration
}

// DefaultRegistryConfig returns the production admission limits.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MaxConnectionsPerUser: 5,
		MaxAttempts:           10,
		AttemptWindow:         time.Minute,
	}
}

// Registry tracks active connections per user and throttles admission. All
// state lives behind one mutex; attempt history is pruned lazily on access.
type Registry struct {
	mu       sync.Mutex
	byUser   map[string]map[Conn]struct{}
	byConn   map[Conn]*connState
	attempts map[string][]time.Time

	cfg    RegistryConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewRegistry creates a connection registry.
func NewRegistry(cfg RegistryConfig, logger *slog.Logger) *Registry {
	return &Registry{
		byUser:   make(map[string]map[Conn]struct{}),
		byConn:   make(map[Conn]*connState),
		attempts: make(map[string][]time.Time),
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// Connect admits a connection for a user. clientID identifies the remote
// client (its IP) for rate limiting independent of the user identity.
// Rejected connections do not consume rate limit budget.
func (r *Registry) Connect(conn Conn, userID, clientID string, phase domain.Phase, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if len(r.byUser[userID]) >= r.cfg.MaxConnectionsPerUser {
		r.logger.Warn("Connection rejected, per-user cap reached", "user_id", userID)
		return ErrTooManyConnections
	}

	userKey := "user:" + userID
	clientKey := "client:" + clientID
	if r.countAttempts(userKey, now) >= r.cfg.MaxAttempts || r.countAttempts(clientKey, now) >= r.cfg.MaxAttempts {
		r.logger.Warn("Connection rejected, attempt rate exceeded", "user_id", userID, "client_id", clientID)
		return ErrRateLimited
	}

	r.attempts[userKey] = append(r.attempts[userKey], now)
	if clientID != "" {
		r.attempts[clientKey] = append(r.attempts[clientKey], now)
	}

	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[Conn]struct{})
	}
	r.byUser[userID][conn] = struct{}{}
	r.byConn[conn] = &connState{
		userID:      userID,
		phase:       phase,
		sessionID:   sessionID,
		connectedAt: now,
	}

	r.logger.Info("WebSocket connected", "user_id", userID, "session_id", sessionID)
	return nil
}

// countAttempts prunes expired attempts for a key and returns the remainder.
// Caller holds the lock.
func (r *Registry) countAttempts(key string, now time.Time) int {
	cutoff := now.Add(-r.cfg.AttemptWindow)
	kept := r.attempts[key][:0]
	for _, t := range r.attempts[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(r.attempts, key)
		return 0
	}
	r.attempts[key] = kept
	return len(kept)
}

// Disconnect removes a connection. Safe to call more than once; repeated
// calls report ok=false.
func (r *Registry) Disconnect(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnectLocked(conn)
}

func (r *Registry) disconnectLocked(conn Conn) (string, bool) {
	state, ok := r.byConn[conn]
	if !ok {
		return "", false
	}
	delete(r.byConn, conn)

	if conns := r.byUser[state.userID]; conns != nil {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(r.byUser, state.userID)
		}
	}

	r.logger.Info("WebSocket disconnected", "user_id", state.userID, "session_id", state.sessionID)
	return state.userID, true
}

// SendToUser delivers an event to every connection of a user and returns how
// many sends succeeded. Connections that fail to send are dropped.
func (r *Registry) SendToUser(ctx context.Context, userID string, v any) int {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.byUser[userID]))
	for conn := range r.byUser[userID] {
		conns = append(conns, conn)
	}
	r.mu.Unlock()

	sent := 0
	var failed []Conn
	for _, conn := range conns {
		if err := conn.Send(ctx, v); err != nil {
			r.logger.Warn("Failed to send to user", "user_id", userID, "error", err)
			failed = append(failed, conn)
			continue
		}
		sent++
	}

	if len(failed) > 0 {
		r.mu.Lock()
		for _, conn := range failed {
			r.disconnectLocked(conn)
		}
		r.mu.Unlock()
	}
	return sent
}

// IsUserConnected reports whether the user has at least one connection.
func (r *Registry) IsUserConnected(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser[userID]) > 0
}

// ConnectionCount returns the user's active connection count.
func (r *Registry) ConnectionCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser[userID])
}

// TotalConnections returns the number of connections across all users.
func (r *Registry) TotalConnections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byConn)
}

// SessionID returns the session identifier recorded for a connection.
func (r *Registry) SessionID(conn Conn) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.byConn[conn]; ok {
		return state.sessionID
	}
	return ""
}

// UpdateUserPhase records a phase change on all of the user's connections.
func (r *Registry) UpdateUserPhase(userID string, phase domain.Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conn := range r.byUser[userID] {
		if state, ok := r.byConn[conn]; ok {
			state.phase = phase
		}
	}
}

// IncrementMessageCount bumps a connection's processed message counter and
// returns the new value, or 0 for unknown connections.
func (r *Registry) IncrementMessageCount(conn Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.byConn[conn]
	if !ok {
		return 0
	}
	state.messageCount++
	return state.messageCount
}

// ShouldSaveContext reports whether the connection's message counter has hit
// the periodic save threshold.
func (r *Registry) ShouldSaveContext(conn Conn, threshold int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.byConn[conn]
	if !ok || threshold <= 0 {
		return false
	}
	return state.messageCount > 0 && state.messageCount%threshold == 0
}

// ResetMessageCount clears a connection's message counter after a context save.
func (r *Registry) ResetMessageCount(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.byConn[conn]; ok {
		state.messageCount = 0
	}
}
