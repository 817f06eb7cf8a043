package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"progression-engine/pkg/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 15 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

var ProvideHTTPServer = fx.Module("http.server",
	fx.Provide(NewHTTPServer),
	fx.Invoke(Run),
)

type HTTPServer struct {
	server   *http.Server
	reloader *certReloader
	done     chan struct{}
}

type Params struct {
	fx.In
	Config  *config.Config
	Handler *gin.Engine
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// NewHTTPServer builds the API listener. With TLS enabled the key pair must
// load at startup; later rotations are picked up from disk.
func NewHTTPServer(p Params) (*HTTPServer, error) {
	cfg := p.Config
	srv := &HTTPServer{
		server: &http.Server{
			Addr:              net.JoinHostPort("", cfg.Server.Addr),
			Handler:           p.Handler,
			ReadTimeout:       orDefault(cfg.Server.ReadTimeout, defaultReadTimeout),
			ReadHeaderTimeout: orDefault(cfg.Server.ReadTimeout, defaultReadTimeout),
			WriteTimeout:      orDefault(cfg.Server.WriteTimeout, defaultWriteTimeout),
			IdleTimeout:       orDefault(cfg.Server.IdleTimeout, defaultIdleTimeout),
		},
		done: make(chan struct{}),
	}

	if cfg.TLS.Enable {
		srv.reloader = newCertReloader(cfg.TLS.CertPath, cfg.TLS.KeyPath)
		if err := srv.reloader.load(); err != nil {
			return nil, fmt.Errorf("load tls key pair: %w", err)
		}
		srv.server.TLSConfig = srv.reloader.tlsConfig()
	}

	return srv, nil
}

func (s *HTTPServer) serve() error {
	if s.reloader != nil {
		return s.server.ListenAndServeTLS("", "")
	}
	return s.server.ListenAndServe()
}

func Run(lc fx.Lifecycle, srv *HTTPServer) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			mode := "plain"
			if srv.reloader != nil {
				mode = "tls"
				go srv.reloader.watch(srv.done)
			}

			zap.L().Info("http server listening", zap.String("addr", srv.server.Addr), zap.String("mode", mode))
			go func() {
				if err := srv.serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					zap.L().Error("http server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(srv.done)
			zap.L().Info("http server draining")
			return srv.server.Shutdown(ctx)
		},
	})
}
