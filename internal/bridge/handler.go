package bridge

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/radutopala/cosmoshop/internal/metrics"
)

// UnknownSessionBody is the response body for submissions that do not name
// an open session.
const UnknownSessionBody = "No transport found for sessionId"

// SessionIDParam is the query parameter carrying the session identifier.
const SessionIDParam = "sessionId"

// Handler exposes an MCP server over SSE: one push channel per client plus a
// submission endpoint addressed by session identifier.
type Handler struct {
	server       *mcp.Server
	sessions     *Table
	messagesPath string
	logger       *slog.Logger
}

// NewHandler creates a bridge for server. messagesPath is the path clients
// POST submissions to, advertised in the endpoint event.
func NewHandler(server *mcp.Server, messagesPath string, logger *slog.Logger) *Handler {
	return &Handler{
		server:       server,
		sessions:     NewTable(),
		messagesPath: messagesPath,
		logger:       logger.With("component", "bridge"),
	}
}

// Sessions returns the session table.
func (h *Handler) Sessions() *Table {
	return h.sessions
}

// ServeSSE opens a session and streams server messages until the client
// disconnects, the MCP session ends, or the session is closed.
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id := uuid.NewString()
	endpoint := h.messagesPath + "?" + SessionIDParam + "=" + url.QueryEscape(id)
	transport := &mcp.SSEServerTransport{Endpoint: endpoint, Response: w}

	sess := newSession(id, transport)
	if err := h.sessions.add(sess); err != nil {
		h.logger.Error("Failed to register session", "session_id", id, "error", err)
		http.Error(w, "internal error: failed to create session", http.StatusInternalServerError)
		return
	}
	metrics.SessionOpened()
	h.logger.Info("Session opened", "session_id", id, "remote_addr", r.RemoteAddr, "active", h.sessions.Len())

	defer func() {
		h.sessions.Close(id)
		metrics.SessionClosed()
		h.logger.Info("Session closed", "session_id", id, "active", h.sessions.Len())
	}()

	ss, err := h.server.Connect(r.Context(), transport, nil)
	if err != nil {
		h.logger.Error("MCP connect failed", "session_id", id, "error", err)
		http.Error(w, "connection failed", http.StatusInternalServerError)
		return
	}

	waitDone := make(chan struct{})
	go func() {
		_ = ss.Wait()
		close(waitDone)
	}()

	select {
	case <-r.Context().Done():
	case <-sess.Done():
	case <-waitDone:
	}

	_ = ss.Close()
	<-waitDone
}

// ServeMessages routes a submission to its session. Unknown or closed
// identifiers are rejected with 400; sessions are never created here.
func (h *Handler) ServeMessages(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get(SessionIDParam)

	sess, ok := h.sessions.Lookup(id)
	if !ok {
		metrics.SubmissionRejected()
		h.logger.Warn("Submission for unknown session", "session_id", id)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, UnknownSessionBody)
		return
	}

	sess.ServeHTTP(w, r)
}

// Shutdown closes every open session so their push channels return.
func (h *Handler) Shutdown() {
	if n := h.sessions.CloseAll(); n > 0 {
		h.logger.Info("Closed open sessions", "count", n)
	}
}
