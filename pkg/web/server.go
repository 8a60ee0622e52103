package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/tempest-bridge/tempest-go/pkg/configflow"
	"github.com/tempest-bridge/tempest-go/pkg/host"
	"github.com/tempest-bridge/tempest-go/pkg/version"
)

// CallbackPath is where the OAuth provider redirects after authorization.
const CallbackPath = "/auth/external/callback"

// API version negotiation headers.
const (
	HeaderAcceptVersion = "Accept-Version"
	HeaderAPIVersion    = "API-Version"
)

// Config configures a Server.
type Config struct {
	Host  *host.Host
	Flows *configflow.Manager

	// Advertiser publishes the listening port over mDNS. Optional.
	Advertiser *Advertiser

	Logger *slog.Logger
}

// Server is the bridge HTTP API.
type Server struct {
	host       *host.Host
	flows      *configflow.Manager
	advertiser *Advertiser
	logger     *slog.Logger
	router     *mux.Router
	started    time.Time
}

// NewServer creates a server and registers its routes.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		host:       cfg.Host,
		flows:      cfg.Flows,
		advertiser: cfg.Advertiser,
		logger:     cfg.Logger.With("component", "web"),
		router:     mux.NewRouter(),
		started:    time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix(version.PathPrefix(version.Current().Major)).Subrouter()
	api.Use(apiVersionMiddleware)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/entries", s.handleEntries).Methods(http.MethodGet)
	api.HandleFunc("/entries/{id}", s.handleRemoveEntry).Methods(http.MethodDelete)
	api.HandleFunc("/entries/{id}/reload", s.handleReloadEntry).Methods(http.MethodPost)
	api.HandleFunc("/devices", s.handleDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}", s.handleRemoveDevice).Methods(http.MethodDelete)
	api.HandleFunc("/entities", s.handleEntities).Methods(http.MethodGet)
	api.HandleFunc("/flows", s.handleStartFlow).Methods(http.MethodPost)

	s.router.HandleFunc(CallbackPath, s.handleCallback).Methods(http.MethodGet)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve listens on addr until ctx is cancelled. When an advertiser is
// configured the bound port is announced for the lifetime of the server.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.advertiser != nil {
		port := ln.Addr().(*net.TCPAddr).Port
		if err := s.advertiser.Start(port); err != nil {
			s.logger.Warn("mdns advertisement failed", "error", err)
		} else {
			defer s.advertiser.Stop()
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("http api listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// apiVersionMiddleware stamps the served API version and rejects clients
// asking for an incompatible major version.
func apiVersionMiddleware(next http.Handler) http.Handler {
	current := version.Current()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderAPIVersion, current.String())

		if want := r.Header.Get(HeaderAcceptVersion); want != "" {
			v, err := version.Parse(want)
			if err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			if !current.Compatible(v) {
				writeError(w, fmt.Sprintf("api version %s not supported, serving %s", v, current), http.StatusNotAcceptable)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// --- Handlers ---

type healthResponse struct {
	Status   string `json:"status"`
	Started  bool   `json:"started"`
	Uptime   string `json:"uptime"`
	Entries  int    `json:"entries"`
	Devices  int    `json:"devices"`
	Entities int    `json:"entities"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Started:  s.host.Started(),
		Uptime:   time.Since(s.started).Truncate(time.Second).String(),
		Entries:  len(s.host.Entries()),
		Devices:  len(s.host.Devices()),
		Entities: len(s.host.Entities()),
	})
}

type entryView struct {
	ID        string    `json:"entry_id"`
	Title     string    `json:"title"`
	Mode      string    `json:"mode"`
	State     string    `json:"state"`
	Platforms []string  `json:"platforms"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	entries := s.host.Entries()
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		state, _ := s.host.EntryState(e.ID)
		platforms := []string{}
		for _, p := range s.host.LoadedPlatforms(e.ID) {
			platforms = append(platforms, string(p))
		}
		views = append(views, entryView{
			ID:        e.ID,
			Title:     e.Title,
			Mode:      strings.ToLower(e.Mode().String()),
			State:     state.String(),
			Platforms: platforms,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.host.RemoveEntry(r.Context(), id); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReloadEntry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.host.ReloadEntry(r.Context(), id); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	state, _ := s.host.EntryState(id)
	writeJSON(w, http.StatusOK, map[string]string{"entry_id": id, "state": state.String()})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.host.Devices())
}

func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.host.RemoveDevice(id); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.host.Entities())
}

func (s *Server) handleStartFlow(w http.ResponseWriter, r *http.Request) {
	if s.flows == nil {
		writeError(w, "config flows are not enabled", http.StatusNotImplemented)
		return
	}

	var input map[string]string
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	res, err := s.flows.StepUser(r.Context(), input)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.flows == nil {
		writeError(w, "config flows are not enabled", http.StatusNotImplemented)
		return
	}

	q := r.URL.Query()
	if msg := q.Get("error"); msg != "" {
		writeError(w, "authorization denied: "+msg, http.StatusBadRequest)
		return
	}
	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		writeError(w, "state and code are required", http.StatusBadRequest)
		return
	}

	res, err := s.flows.ResumeExternal(r.Context(), state, code)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Helpers ---

type errorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("web: encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, errorResponse{Message: message, Status: status})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, host.ErrEntryNotFound),
		errors.Is(err, host.ErrDeviceNotFound),
		errors.Is(err, configflow.ErrUnknownFlow):
		return http.StatusNotFound
	case errors.Is(err, host.ErrDeviceInUse):
		return http.StatusConflict
	case errors.Is(err, configflow.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, host.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, configflow.ErrNoAuthorizer):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
