package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dropDatabas3/authcore/internal/observability/logger"
)

// Server envuelve http.Server con timeouts razonables y apagado ordenado.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

// NewServer crea el server; no empieza a escuchar hasta Run.
func NewServer(addr string, h http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		shutdownTimeout: 10 * time.Second,
	}
}

// Run escucha hasta que ctx se cancele y luego drena las conexiones.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve es Run sobre un listener ya abierto (tests).
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := logger.L().With(logger.Component("http"))
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", logger.String("addr", ln.Addr().String()))
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("http server shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
