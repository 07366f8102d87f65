package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"fleet-signage/internal/announce"
	"fleet-signage/internal/fleet"
)

const maxBodyBytes = 1 << 16

// Announcer is satisfied by *announce.Service.
type Announcer interface {
	HandleGPS(ctx context.Context, in fleet.GPSSample) announce.Result
	Waypoints(ctx context.Context, busKey string) ([]fleet.Waypoint, error)
}

type Server struct {
	svc Announcer
	ws  http.Handler
	log *zap.Logger
}

// New wires the HTTP routes. ws may be nil when no display hub runs.
func New(svc Announcer, ws http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, ws: ws, log: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /announce-gps", s.announceGPS)
	mux.HandleFunc("GET /midpoints/public/{busNumber}", s.publicMidpoints)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	if s.ws != nil {
		mux.Handle("GET /ws", s.ws)
	}
	return s.recoverer(mux)
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("http listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// announceGPS answers 200 for every decodable body; outcomes, including
// validation failures, are carried in the JSON result.
func (s *Server) announceGPS(w http.ResponseWriter, r *http.Request) {
	var in fleet.GPSSample
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&in)
	if err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			writeJSON(w, http.StatusBadRequest, announce.Result{OK: false, Error: announce.ErrInvalidPayload.Error()})
			return
		}
		writeJSON(w, http.StatusOK, announce.Result{OK: false, Error: announce.ErrInvalidPayload.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.svc.HandleGPS(r.Context(), in))
}

type midpointsResponse struct {
	OK    bool             `json:"ok"`
	Items []fleet.Waypoint `json:"items"`
	Error string           `json:"error,omitempty"`
}

func (s *Server) publicMidpoints(w http.ResponseWriter, r *http.Request) {
	bus := strings.TrimSpace(r.PathValue("busNumber"))
	items, err := s.svc.Waypoints(r.Context(), bus)
	if err != nil {
		s.log.Error("list midpoints", zap.String("bus", bus), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, midpointsResponse{OK: false, Items: []fleet.Waypoint{}, Error: "failed to load midpoints"})
		return
	}
	if items == nil {
		items = []fleet.Waypoint{}
	}
	writeJSON(w, http.StatusOK, midpointsResponse{OK: true, Items: items})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.log.Error("handler panic", zap.String("path", r.URL.Path), zap.Any("panic", v))
				writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
