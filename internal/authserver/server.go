package authserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/stonefire/cloudsync/internal/credentials"
)

const DefaultAddr = "127.0.0.1:8000"

type Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("enabled", c.Enabled),
		slog.String("addr", c.Addr),
		slog.String("cert_file", c.CertFile),
		slog.String("key_file", c.KeyFile),
	)
}

// Authorizer is the part of the credential manager the listener drives.
type Authorizer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*credentials.CredentialSet, error)
}

var _ Authorizer = (*credentials.Manager)(nil)

// Server is the local listener the operator visits to grant access.
type Server struct {
	config *Config
	server *http.Server
}

func New(config *Config, auth Authorizer) *Server {
	addr := config.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		config: config,
		server: &http.Server{
			Addr:              addr,
			Handler:           SetupRoutes(NewHandler(auth)),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start binds the listener and serves until ctx is cancelled. A bind failure is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("authorization listener: %w", err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("authorization listener start", "addr", ln.Addr().String(), "tls", s.tls())
	defer slog.Info("authorization listener stop")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Stop(context.WithoutCancel(ctx))
	}
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) tls() bool {
	return s.config.CertFile != "" && s.config.KeyFile != ""
}

func (s *Server) serve(ln net.Listener) error {
	if s.tls() {
		return s.server.ServeTLS(ln, s.config.CertFile, s.config.KeyFile)
	}
	return s.server.Serve(ln)
}
