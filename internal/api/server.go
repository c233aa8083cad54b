// Package api exposes the link session, display log and layout store over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/linkctl/internal/auth"
	"github.com/danmuck/linkctl/internal/display"
	"github.com/danmuck/linkctl/internal/layout"
	"github.com/danmuck/linkctl/internal/link"
	"github.com/danmuck/linkctl/internal/observability"
	"github.com/danmuck/linkctl/internal/protocol/frame"
	"github.com/danmuck/linkctl/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

// Link is the session surface the API drives. *link.Manager implements it.
type Link interface {
	Configure(ctx context.Context, conn session.ConnectionConfig) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SendFrame(ctx context.Context, mode frame.Mode, input string) (link.SendResult, error)
	SetAutoRespond(ctx context.Context, enabled bool) error
	Status() session.Status
	Config() session.ConnectionConfig
	AutoRespond() bool
	ListenAddr() string
	Peers() []link.PeerInfo
}

var _ Link = (*link.Manager)(nil)

// Deps are the components served by the API. A nil Display or Layouts falls
// back to an in-memory instance; a nil Auth leaves the control routes open.
type Deps struct {
	Link    Link
	Display *display.Log
	Layouts *layout.Store
	Auth    auth.Validator
}

type Server struct {
	ID       string
	Addr     string
	Appeared time.Time
	// CertFile and KeyFile switch Serve to HTTPS when both are set.
	CertFile string
	KeyFile  string

	link    Link
	display *display.Log
	layouts *layout.Store
	auth    auth.Validator
	limits  frame.Limits
	router  *gin.Engine

	// stopping releases long-lived streams before Shutdown waits on them.
	stopping     chan struct{}
	stoppingOnce sync.Once
}

func New(id, addr string, corsOrigins []string, deps Deps) (*Server, error) {
	if deps.Link == nil {
		return nil, fmt.Errorf("api: link is required")
	}
	if deps.Display == nil {
		deps.Display = display.NewMemoryLog()
	}
	if deps.Layouts == nil {
		deps.Layouts = layout.NewMemoryStore()
	}

	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(observability.Component("api")))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		link:     deps.Link,
		display:  deps.Display,
		layouts:  deps.Layouts,
		auth:     deps.Auth,
		limits:   frame.DefaultLimits(),
		router:   r,
		stopping: make(chan struct{}),
	}
	s.RegisterRoutes()
	return s, nil
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens on s.Addr until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", s.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	tls := s.CertFile != "" && s.KeyFile != ""
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("id", s.ID).Bool("tls", tls).Msg("api.Server.Serve listening")
		if tls {
			errCh <- srv.ServeTLS(ln, s.CertFile, s.KeyFile)
			return
		}
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
	}

	s.stoppingOnce.Do(func() { close(s.stopping) })
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	log.Info().Str("id", s.ID).Msg("api.Server.Serve stopped")
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
