// Package api exposes the console over HTTP: state and catalog queries and
// the same text commands the operator types on stdin.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/sidescan/internal/console"
	"github.com/banshee-data/sidescan/internal/httputil"
	"github.com/banshee-data/sidescan/internal/monitoring"
	"github.com/banshee-data/sidescan/internal/presets"
	"github.com/banshee-data/sidescan/internal/sensors"
	"github.com/banshee-data/sidescan/internal/session"
	"github.com/banshee-data/sidescan/internal/sonar"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const maxCommandBody = 4 << 10

// Console is the part of the console event loop the server drives.
type Console interface {
	State(ctx context.Context) (console.Snapshot, error)
	Do(ctx context.Context, ev session.Event) (console.Snapshot, error)
}

type Server struct {
	console Console
	ports   *sensors.Table
	presets *presets.Registry
	metrics *monitoring.Metrics
}

// NewServer returns a Server. ports and reg are nil in browse-only mode.
func NewServer(c Console, ports *sensors.Table, reg *presets.Registry, metrics *monitoring.Metrics) *Server {
	return &Server{
		console: c,
		ports:   ports,
		presets: reg,
		metrics: metrics,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Diagf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/tracks", s.listTracks)
	mux.HandleFunc("/api/command", s.sendCommandHandler)
	mux.HandleFunc("/api/sensors", s.listSensors)
	mux.HandleFunc("/api/presets", s.listPresets)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	snap, err := s.console.State(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	snap, err := s.console.State(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap.Catalog)
}

type commandRequest struct {
	Command string `json:"command"`
}

type commandResponse struct {
	Error    string            `json:"error,omitempty"`
	Snapshot *console.Snapshot `json:"snapshot,omitempty"`
}

// sendCommandHandler accepts a form value or a JSON body named "command".
// The resulting state is returned even when the command failed.
func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}

	var line string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req commandRequest
		if err := httputil.DecodeJSONBody(r, maxCommandBody, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		line = req.Command
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxCommandBody)
		line = r.FormValue("command")
	}

	ev, err := console.ParseCommand(line)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	snap, err := s.console.Do(r.Context(), ev)
	resp := commandResponse{Snapshot: &snap}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		resp.Error = err.Error()
		httputil.WriteJSON(w, statusForError(err), resp)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// statusForError maps console errors onto HTTP status codes.
func statusForError(err error) int {
	var (
		verr *sonar.ValidationError
		terr *sonar.TransitionError
		aerr *sonar.ApplyError
		perr *sonar.PartialApplyError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, sonar.ErrNoSonar):
		return http.StatusServiceUnavailable
	case errors.Is(err, sonar.ErrCatalogLocked), errors.As(err, &terr):
		return http.StatusConflict
	case errors.As(err, &aerr), errors.As(err, &perr):
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) listSensors(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	ports := []sensors.PortStatus{}
	if s.ports != nil {
		ports = s.ports.Ports
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"ports":  ports,
		"counts": s.ports.Counts(),
	})
}

func (s *Server) listPresets(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	if s.presets == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, sonar.ErrNoSonar.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.presets.Entries())
}
