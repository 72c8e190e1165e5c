package controllerd

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

// ServerConfig holds the controller daemon's listen configuration.
type ServerConfig struct {
	Port      int
	Domain    string // non-empty enables automatic TLS via Let's Encrypt
	AuthToken string
}

// Server is the reference controller daemon.
type Server struct {
	cfg   ServerConfig
	store *Store
	http  *http.Server
}

// NewServer constructs a Server bound to a fresh in-memory Store.
func NewServer(cfg ServerConfig) *Server {
	store := NewStore()
	router := SetupRouter(cfg.AuthToken, store)

	return &Server{
		cfg:   cfg,
		store: store,
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Store exposes the daemon's in-memory job accounting store, for an
// administrative path (e.g. an operator-initiated kill) to reach.
func (s *Server) Store() *Store {
	return s.store
}

// ListenAndServe starts the HTTP (or HTTPS, if Domain is set) server.
func (s *Server) ListenAndServe() error {
	if s.cfg.Domain != "" {
		return s.listenTLS()
	}
	return s.http.ListenAndServe()
}

// listenTLS starts an HTTPS server with an automatically managed
// Let's Encrypt certificate.
func (s *Server) listenTLS() error {
	certManager := autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(s.cfg.Domain),
		Cache:      autocert.DirCache(".gridctl-certs"),
	}

	s.http.Addr = ":443"
	s.http.TLSConfig = &tls.Config{
		GetCertificate: certManager.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}

	go func() {
		httpSrv := &http.Server{
			Addr:    ":80",
			Handler: certManager.HTTPHandler(nil),
		}
		httpSrv.ListenAndServe()
	}()

	return s.http.ListenAndServeTLS("", "")
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
