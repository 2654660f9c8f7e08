// Package httpapi exposes the sync engine over HTTP: one POST endpoint,
// optional origin/cookie gating, and CORS headers for cross-site clients.
package httpapi

import (
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"syncserver/internal/engine"
)

// wordCharacter matches the original server's cookie-presence check: the
// named cookie must exist and its value must begin with a word character,
// equivalent to the regex `(^|;)\s*NAME=\w`.
var wordCharacter = regexp.MustCompile(`^\w`)

// Handler serves the differential-sync protocol over HTTP.
type Handler struct {
	engine           *engine.Engine
	logger           *zap.Logger
	connectionOrigin string
	requiredCookie   string
}

// New creates a Handler. connectionOrigin, if non-empty, restricts requests
// to that client IP. requiredCookie, if non-empty, names a cookie that must
// be present with a value that begins with a word character.
func New(e *engine.Engine, logger *zap.Logger, connectionOrigin, requiredCookie string) *Handler {
	return &Handler{
		engine:           e,
		logger:           logger,
		connectionOrigin: connectionOrigin,
		requiredCookie:   requiredCookie,
	}
}

// Routes registers the sync endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/sync", h.handleSync)
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.New().String()
	logger := h.logger.With(zap.String("request_id", requestID))

	if h.connectionOrigin != "" && !h.originMatches(r) {
		logger.Warn("rejected request from disallowed origin", zap.String("remote_addr", r.RemoteAddr))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if h.requiredCookie != "" && !h.hasRequiredCookie(r) {
		logger.Warn("rejected request missing required cookie", zap.String("cookie", h.requiredCookie))
		http.Error(w, "gone", http.StatusGone)
		return
	}

	if origin := r.Header.Get("Origin"); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}

	if err := r.ParseForm(); err != nil {
		logger.Warn("failed to parse request body", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if _, ok := r.PostForm["q"]; !ok {
		logger.Warn("request body has no q field")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	q := r.PostFormValue("q")
	body := h.engine.HandleRequest(q)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))

	logger.Debug("handled sync request",
		zap.Int("request_bytes", len(q)),
		zap.Int("response_bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)
}

func (h *Handler) originMatches(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host == h.connectionOrigin
}

func (h *Handler) hasRequiredCookie(r *http.Request) bool {
	c, err := r.Cookie(h.requiredCookie)
	if err != nil {
		return false
	}
	return wordCharacter.MatchString(c.Value)
}
