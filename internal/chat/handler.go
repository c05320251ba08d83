package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/goalgetter/goalgetter/internal/domain"
	"github.com/goalgetter/goalgetter/internal/identity"
	"github.com/goalgetter/goalgetter/internal/memory"
)

// Application close codes the frontend distinguishes from normal closure.
const (
	closeAccessDenied websocket.StatusCode = 4003
	closeRejected     websocket.StatusCode = 4000
)

// HandlerConfig tunes the websocket endpoint.
type HandlerConfig struct {
	// SaveThreshold is the per-connection message count that triggers a
	// mid-session context save.
	SaveThreshold int
	// ExtractTimeout bounds the context extraction run after disconnect.
	ExtractTimeout time.Duration
	IsDev          bool
	AllowedOrigin  string
}

// DefaultHandlerConfig returns the production websocket settings.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		SaveThreshold:  1000,
		ExtractTimeout: 30 * time.Second,
	}
}

// Handler upgrades chat websocket requests and runs the per-connection
// session loop.
type Handler struct {
	registry     *Registry
	gate         *Gate
	orchestrator *Orchestrator
	welcome      *WelcomeService
	contexts     *memory.Service
	cfg          HandlerConfig
	logger       *slog.Logger
}

// NewHandler creates a chat websocket handler.
func NewHandler(registry *Registry, gate *Gate, orchestrator *Orchestrator, welcome *WelcomeService, contexts *memory.Service, cfg HandlerConfig, logger *slog.Logger) *Handler {
	return &Handler{
		registry:     registry,
		gate:         gate,
		orchestrator: orchestrator,
		welcome:      welcome,
		contexts:     contexts,
		cfg:          cfg,
		logger:       logger,
	}
}

// wsConn adapts a websocket connection to the registry's Conn interface.
// coder/websocket serializes concurrent writes internally.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (h *Handler) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	if h.cfg.IsDev {
		opts.OriginPatterns = []string{"*"}
	} else if h.cfg.AllowedOrigin != "" {
		opts.OriginPatterns = []string{h.cfg.AllowedOrigin}
	}
	return opts
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.logger.Warn("WebSocket accept failed", "user_id", user.ID, "error", err)
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "session ended")

	ctx := r.Context()
	conn := &wsConn{ws: ws}

	// The gate decides before the session starts whether chat is open at
	// all; the orchestrator re-checks on every message.
	verdict, err := h.gate.Check(ctx, user)
	if err != nil {
		h.logger.Error("Access check failed", "user_id", user.ID, "error", err)
		ws.Close(websocket.StatusInternalError, "access check failed")
		return
	}
	if !verdict.CanAccess {
		_ = conn.Send(ctx, errorEvent(verdict.Reason, verdict.NextAvailable, false))
		ws.Close(closeAccessDenied, "access denied")
		return
	}

	sessionID := uuid.NewString()
	clientID := identity.IPFromRequest(r)

	// Admission failures refuse the connection outright. No logical session
	// exists yet, so no event goes out.
	if err := h.registry.Connect(conn, user.ID, clientID, user.Phase, sessionID); err != nil {
		h.logger.Warn("WebSocket admission rejected", "user_id", user.ID, "error", err)
		ws.Close(closeRejected, "connection rejected")
		return
	}
	defer h.finishSession(conn, user.ID, sessionID)

	if err := conn.Send(ctx, connectedEvent(user.Phase, verdict.MeetingID)); err != nil {
		return
	}
	if err := conn.Send(ctx, welcomeEvent(h.welcome.WelcomeMessage(ctx, user.ID))); err != nil {
		return
	}

	h.readLoop(ctx, ws, conn, user, sessionID, verdict.MeetingID)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, conn *wsConn, user *domain.User, sessionID, meetingID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				h.logger.Debug("WebSocket closed by client", "user_id", user.ID)
			} else {
				h.logger.Warn("WebSocket read failed", "user_id", user.ID, "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = conn.Send(ctx, errorEvent("Invalid message format. Expected JSON.", nil, false))
			continue
		}

		switch msg.Type {
		case "ping":
			if err := conn.Send(ctx, pongEvent()); err != nil {
				return
			}

		case "typing":
			// Client-side indicator only, nothing to do.

		case "message":
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			if err := h.orchestrator.HandleMessage(ctx, conn, user, msg, sessionID, meetingID); err != nil {
				h.logger.Error("Message handling failed", "user_id", user.ID, "error", err)
				_ = conn.Send(ctx, errorEvent(errorReplyText, nil, true))
			}
			h.afterTurn(ctx, conn, user.ID, sessionID)

		default:
			h.logger.Debug("Ignoring unknown message type", "user_id", user.ID, "type", msg.Type)
		}
	}
}

// afterTurn bumps the connection's message counter and saves session context
// when the periodic threshold is hit.
func (h *Handler) afterTurn(ctx context.Context, conn Conn, userID, sessionID string) {
	h.registry.IncrementMessageCount(conn)
	if !h.registry.ShouldSaveContext(conn, h.cfg.SaveThreshold) {
		return
	}
	if _, err := h.contexts.ExtractAndSave(ctx, userID, sessionID); err != nil {
		h.logger.Warn("Periodic context save failed", "user_id", userID, "error", err)
		return
	}
	h.registry.ResetMessageCount(conn)
}

// finishSession removes the connection from the registry and kicks off a
// best-effort context extraction that never blocks the disconnect path.
func (h *Handler) finishSession(conn Conn, userID, sessionID string) {
	if _, ok := h.registry.Disconnect(conn); !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ExtractTimeout)
		defer cancel()
		if _, err := h.contexts.ExtractAndSave(ctx, userID, sessionID); err != nil {
			h.logger.Warn("Context extraction on disconnect failed", "user_id", userID, "error", err)
		}
	}()
}
