// Package server wires the checkout runtime and HTTP lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/popup.city/internal/platform/config"
	"github.com/louisbranch/popup.city/internal/platform/id"
	"github.com/louisbranch/popup.city/internal/services/checkout"
	"github.com/louisbranch/popup.city/internal/services/checkout/api/httpapi"
	"github.com/louisbranch/popup.city/internal/services/checkout/gateway/edgeapi"
	checkoutsqlite "github.com/louisbranch/popup.city/internal/services/checkout/storage/sqlite"
)

type serverEnv struct {
	DBPath     string `env:"POPUP_CITY_CHECKOUT_DB_PATH"`
	EdgeAPIURL string `env:"POPUP_CITY_EDGE_API_URL"`
	EdgeAPIKey string `env:"POPUP_CITY_EDGE_API_KEY"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "checkout.db")
	}
	if strings.TrimSpace(cfg.EdgeAPIURL) == "" {
		cfg.EdgeAPIURL = "http://localhost:8080"
	}
	return cfg
}

// Server hosts the checkout HTTP API and storage lifecycle.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *checkoutsqlite.Store
}

// New creates a configured checkout server listening on the provided
// port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured checkout server for the provided
// address.
func NewWithAddr(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	env := loadServerEnv()
	store, err := checkoutsqlite.Open(env.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	edge := edgeapi.New(env.EdgeAPIURL, env.EdgeAPIKey, nil)
	handler := httpapi.NewHandler(checkout.Deps{
		Catalog:      edge,
		Applications: edge,
		Coupons:      edge,
		Payments:     edge,
		Store:        store,
	})

	mux := handler.Routes()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           withRequestID(mux),
			ReadHeaderTimeout: 10 * time.Second,
		},
		store: store,
	}, nil
}

// withRequestID tags every response with a generated request identifier
// so upstream logs and client reports can be correlated.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			generated, err := id.New()
			if err == nil {
				requestID = generated
			}
		}
		if requestID != "" {
			w.Header().Set("X-Request-ID", requestID)
		}
		next.ServeHTTP(w, r)
	})
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a checkout server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the HTTP server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("checkout server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close releases the server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close checkout store: %v", err)
		}
	}
}
