package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hugh/reconsole/internal/api/client"
	"github.com/hugh/reconsole/internal/api/dto"
	"github.com/hugh/reconsole/internal/api/middleware"
	"github.com/hugh/reconsole/internal/api/validation"
	"github.com/hugh/reconsole/internal/console"
	"github.com/hugh/reconsole/internal/models"
)

// Console is the part of the controller the web handlers drive.
type Console interface {
	Submit(ctx context.Context, domain, scanType string) (*models.ScanRecord, error)
	View(ctx context.Context, scanID string) (*models.ScanRecord, error)
	Stop()
	RefreshRecent(ctx context.Context) ([]models.ScanSummary, error)
	ViewFile(ctx context.Context, scanID, name string) (string, error)
	FetchFile(ctx context.Context, scanID, name string) (string, error)
	ExportResults(ctx context.Context, scanID string, format console.ExportFormat) (string, []byte, error)
}

// Board is the read side of the display plus the two purely local actions.
type Board interface {
	Snapshot() console.Snapshot
	Subscribe() (<-chan struct{}, func())
	DismissNotices(region console.Region)
	CloseFile()
}

const wsPingInterval = 30 * time.Second

type ConsoleHandler struct {
	console   Console
	board     Board
	templates *template.Template
	csrf      *middleware.CSRFStore
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

func NewConsoleHandler(c Console, board Board, templates *template.Template, csrf *middleware.CSRFStore, logger *slog.Logger, allowedOrigins []string) *ConsoleHandler {
	return &ConsoleHandler{
		console:   c,
		board:     board,
		templates: templates,
		csrf:      csrf,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Index renders the board page with a fresh recent scans list.
func (h *ConsoleHandler) Index(w http.ResponseWriter, r *http.Request) {
	if _, err := h.console.RefreshRecent(r.Context()); err != nil {
		h.logger.Warn("recent scans unavailable", "error", err)
	}

	data := map[string]interface{}{
		"Board":     h.board.Snapshot(),
		"CSRFToken": middleware.GetCSRFToken(r, h.csrf),
		"ScanTypes": []models.ScanType{models.ScanTypeLight, models.ScanTypeCool, models.ScanTypeUltra},
	}
	h.render(w, "console.html", data)
}

// Submit starts a scan from the form fields domain and scan_type.
func (h *ConsoleHandler) Submit(w http.ResponseWriter, r *http.Request) {
	domain, scanType := r.FormValue("domain"), r.FormValue("scan_type")
	if isJSONBody(r) {
		var req models.ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
			return
		}
		domain, scanType = req.Domain, string(req.ScanType)
	}

	// the poll loop outlives this request
	rec, err := h.console.Submit(context.WithoutCancel(r.Context()), domain, scanType)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusAccepted, rec)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// View switches tracking to the scan in the URL.
func (h *ConsoleHandler) View(w http.ResponseWriter, r *http.Request) {
	rec, err := h.console.View(context.WithoutCancel(r.Context()), urlParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, rec)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *ConsoleHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.console.Stop()

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "polling stopped"})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// File opens an artifact on the board and returns its content.
func (h *ConsoleHandler) File(w http.ResponseWriter, r *http.Request) {
	content, err := h.console.ViewFile(r.Context(), urlParam(r, "id"), urlParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FileContentResponse{Content: content})
}

func (h *ConsoleHandler) CloseFile(w http.ResponseWriter, r *http.Request) {
	h.board.CloseFile()
	w.WriteHeader(http.StatusNoContent)
}

// Download serves an artifact as an attachment.
func (h *ConsoleHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := urlParam(r, "name")
	if !validation.IsSafeFileName(name) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid file name"})
		return
	}

	content, err := h.console.FetchFile(r.Context(), urlParam(r, "id"), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeAttachment(w, name, "text/plain; charset=utf-8", []byte(content))
}

// Results exports the full scan record, as JSON unless ?format=yaml.
func (h *ConsoleHandler) Results(w http.ResponseWriter, r *http.Request) {
	format := console.ExportFormat(strings.ToLower(r.URL.Query().Get("format")))

	name, data, err := h.console.ExportResults(r.Context(), urlParam(r, "id"), format)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	contentType := "application/json"
	if format == console.FormatYAML {
		contentType = "application/yaml"
	}
	writeAttachment(w, name, contentType, data)
}

// Snapshot returns the board as JSON.
func (h *ConsoleHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.board.Snapshot())
}

// DismissNotices clears the notices of ?region=, or all of them.
func (h *ConsoleHandler) DismissNotices(w http.ResponseWriter, r *http.Request) {
	h.board.DismissNotices(console.Region(r.FormValue("region")))
	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// WS streams a board snapshot on connect and after every change.
func (h *ConsoleHandler) WS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	changes, cancel := h.board.Subscribe()
	defer cancel()

	// the client never sends anything we use; reading detects the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(h.board.Snapshot()); err != nil {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := conn.WriteJSON(h.board.Snapshot()); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (h *ConsoleHandler) render(w http.ResponseWriter, name string, data interface{}) {
	if h.templates == nil {
		http.Error(w, "Templates not loaded", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("template render failed", "template", name, "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// fail maps engine errors to status codes. Form posts from the page go back
// to the board, where the notice is already showing.
func (h *ConsoleHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("console action failed", "path", r.URL.Path, "error", err)
	}

	if r.Method == http.MethodPost && !wantsJSON(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, status, dto.ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var validationErr *console.ValidationError

	switch {
	case errors.As(err, &validationErr), errors.Is(err, console.ErrNoScanSelected):
		return http.StatusBadRequest
	case client.IsNotFound(err):
		return http.StatusNotFound
	default:
		// the backend failed or could not be reached
		return http.StatusBadGateway
	}
}

// urlParam returns a route parameter with its percent-encoding removed.
func urlParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func isJSONBody(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func writeAttachment(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// originChecker accepts same-host origins plus the configured ones; "*"
// accepts any.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		_, host, ok := strings.Cut(origin, "://")
		return ok && strings.EqualFold(host, r.Host)
	}
}
