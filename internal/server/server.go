package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/funnyzak/reqtape/internal/filter"
	"github.com/funnyzak/reqtape/internal/logger"
	"github.com/funnyzak/reqtape/internal/printer"
)

// Options recording proxy settings
type Options struct {
	Port         int
	Upstream     string
	MaxBodyBytes int64
	RewriteHost  bool
	// ShutdownTimeout bounds the drain of in-flight requests on Start's exit
	ShutdownTimeout time.Duration
}

// Deps are the collaborators the proxy drives
type Deps struct {
	Client   Client
	Recorder Recorder
	Methods  *filter.Predicate
	Paths    *filter.Predicate
	Printer  printer.Printer
	Logger   logger.Logger
}

// Server recording proxy
type Server struct {
	opts    Options
	deps    Deps
	router  *mux.Router
	mu      sync.Mutex
	httpSrv *http.Server

	stopOnce sync.Once
	stopErr  error
}

// New creates a new server instance
func New(opts Options, deps Deps) (*Server, error) {
	if opts.Upstream == "" {
		return nil, errors.New("upstream is required")
	}
	if deps.Client == nil || deps.Recorder == nil {
		return nil, errors.New("client and recorder are required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}

	router := mux.NewRouter().SkipClean(true).UseEncodedPath()
	router.PathPrefix("/").Handler(NewHandler(opts, deps))

	return &Server{opts: opts, deps: deps, router: router}, nil
}

// Handler exposes the proxy as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured port and serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.opts.Port))
	if err != nil {
		s.stopAfterFailure()
		return fmt.Errorf("listen on port %d: %w", s.opts.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then stops the proxy
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	s.deps.Logger.Info("Starting recording proxy",
		"addr", ln.Addr().String(),
		"upstream", s.opts.Upstream,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		s.deps.Logger.Info("Shutting down recording proxy...")
		stopCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		return s.Stop(stopCtx)
	})
	return group.Wait()
}

// Stop drains in-flight requests, finalizes the report and releases the
// upstream client. Only the first call does any work.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		var errs []error

		s.mu.Lock()
		srv := s.httpSrv
		s.mu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				s.deps.Logger.Error("Server forced to shutdown", "error", err)
				errs = append(errs, fmt.Errorf("shutdown: %w", err))
			}
		}

		if err := s.deps.Recorder.Finalize(); err != nil {
			errs = append(errs, fmt.Errorf("finalize report: %w", err))
		}
		s.deps.Client.Close()

		s.stopErr = errors.Join(errs...)
		s.deps.Logger.Info("Recording proxy exited")
	})
	return s.stopErr
}

// stopAfterFailure releases everything when the proxy never served. The
// report is removed rather than published.
func (s *Server) stopAfterFailure() {
	s.stopOnce.Do(func() {
		if err := s.deps.Recorder.Discard(); err != nil {
			s.deps.Logger.Warn("Failed to discard report", "error", err)
		}
		s.deps.Client.Close()
	})
}
