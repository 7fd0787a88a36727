package statusfeed

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server serves the hub on /ws and a liveness probe on /healthz.
type Server struct {
	hub    *Hub
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(addr string, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{
		hub:    hub,
		logger: logger,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start listens and serves in the background. It returns the bound address.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("feed server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("feed server listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

// Shutdown closes feed clients first; hijacked websocket connections are not
// tracked by http.Server.
func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Join(s.hub.Close(ctx), s.srv.Shutdown(ctx))
}
