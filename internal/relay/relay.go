// Package relay is the HTTP front of the search page. It proxies the /ws
// query stream to the backend and streams result PDFs from it, so browsers
// and the terminal client only ever talk to one host.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

type Config struct {
	Addr           string
	BackendURL     string // ws://backend:8001
	BackendHTTPURL string // http://backend:8001
}

type Server struct {
	cfg      Config
	log      zerolog.Logger
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
	client   *http.Client
	server   *http.Server
}

func New(cfg Config, log zerolog.Logger) *Server {
	s := &Server{
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		client: &http.Client{},
	}
	s.server = &http.Server{Addr: cfg.Addr, Handler: s.Routes()}
	return s
}

// Routes builds the relay's handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		s.log.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/ws", s.handleWS)
	r.Get("/pdf/{file}", s.handlePDF)
	return r
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.cfg.Addr).Str("backend", s.cfg.BackendURL).Msg("relay listening")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) backendWS() string {
	return strings.TrimRight(s.cfg.BackendURL, "/") + "/ws"
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	client, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer client.Close()

	backend, resp, err := s.dialer.DialContext(r.Context(), s.backendWS(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		log.Error().Err(err).Str("backend", s.backendWS()).Msg("backend dial failed")
		_ = client.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "backend unavailable"))
		return
	}
	defer backend.Close()

	errc := make(chan error, 2)
	go func() { errc <- forwardToBackend(client, backend) }()
	go func() { errc <- forwardToClient(backend, client) }()

	if err := <-errc; err != nil && !isClosure(err) {
		log.Error().Err(err).Msg("relay stream ended")
		return
	}
	log.Debug().Msg("relay stream closed")
}

func forwardToBackend(client, backend *websocket.Conn) error {
	for {
		mt, p, err := client.ReadMessage()
		if err != nil {
			_ = backend.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return err
		}
		if err := backend.WriteMessage(mt, p); err != nil {
			return fmt.Errorf("write to backend: %w", err)
		}
	}
}

func forwardToClient(backend, client *websocket.Conn) error {
	for {
		_, p, err := backend.ReadMessage()
		if err != nil {
			_ = client.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return err
		}
		if err := client.WriteMessage(websocket.TextMessage, filterBackendMessage(p)); err != nil {
			return fmt.Errorf("write to client: %w", err)
		}
	}
}

// filterBackendMessage strips error messages down to the error (and the
// request id, when present). Everything else passes through untouched.
func filterBackendMessage(p []byte) []byte {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(p, &m); err != nil {
		return p
	}
	msg, ok := m["error"]
	if !ok {
		return p
	}
	out := map[string]json.RawMessage{"error": msg}
	if id, ok := m["request_id"]; ok {
		out["request_id"] = id
	}
	b, err := json.Marshal(out)
	if err != nil {
		return p
	}
	return b
}

func isClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	target := strings.TrimRight(s.cfg.BackendHTTPURL, "/") + "/pdf/" + url.PathEscape(file)
	if page := r.URL.Query().Get("page"); page != "" {
		if _, err := strconv.Atoi(page); err != nil {
			http.Error(w, "page must be an integer", http.StatusUnprocessableEntity)
			return
		}
		target += "?page=" + page
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("target", target).Msg("pdf fetch failed")
		http.Error(w, "backend unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		http.Error(w, fmt.Sprintf("backend returned %s", resp.Status), resp.StatusCode)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", file))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, resp.Body); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("pdf stream interrupted")
	}
}
