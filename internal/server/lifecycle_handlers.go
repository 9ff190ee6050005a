package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"vigil/internal/analysis"
	"vigil/internal/config"
	"vigil/internal/diagnostics"
	"vigil/internal/scheduler"
	"vigil/internal/store"
	"vigil/internal/version"
	"vigil/internal/workspace"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) initialize(
	context *glsp.Context,
	params *protocol.InitializeParams,
) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coord != nil {
		return nil, errors.New("server already initialized")
	}

	// Config
	cfg, err := config.Merge(s.opts.Config, params.InitializationOptions)
	if err != nil {
		return nil, fmt.Errorf("invalid initializationOptions: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log.Infof("config: languages=%v debounce=%s owner=%s", cfg.Languages, cfg.Debounce, cfg.Owner)

	// Cache
	cachePath, err := resolveCachePath(cfg, params.RootURI)
	if err != nil {
		return nil, err
	}
	cache, err := store.Open(cachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", cachePath, err)
	}
	analyzer, err := analysis.New(cfg, cache)
	if err != nil {
		cache.Close()
		return nil, err
	}

	sched := scheduler.NewScheduler(4, nil)
	sched.RunScheduler()
	if ttl := time.Duration(cfg.CacheTTL); ttl > 0 {
		sched.SchedulePeriodicTask(time.Hour, scheduler.Task{
			Name: "prune cache",
			Execute: func() error {
				n, err := cache.Prune(time.Now().Add(-ttl))
				if err != nil {
					return err
				}
				log.Debugf("pruned %d cached result(s)", n)
				return nil
			},
		})
	}

	ctx, cancel := contextWithCancel()
	s.cfg = cfg
	s.notify = context.Notify
	s.ctx, s.cancel = ctx, cancel
	s.cache = cache
	s.analyzer = analyzer
	s.sched = sched
	s.ws = workspace.New(workspace.WithPublisher(s.publish))

	opts := []diagnostics.Option{
		diagnostics.WithDebounce(time.Duration(cfg.Debounce)),
		diagnostics.WithScheduler(sched),
		diagnostics.WithContext(ctx),
	}
	if s.opts.Observer != nil {
		opts = append(opts, diagnostics.WithObserver(s.opts.Observer))
	}
	s.coord = diagnostics.New(s.ws, cfg.Selector(), analyzer, opts...)

	syncKind := protocol.TextDocumentSyncKindIncremental

	capabilities := s.handler.CreateServerCapabilities()
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
	}
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{
		Commands: []string{CommandRevalidate},
	}

	v := version.Version
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    Name,
			Version: &v,
		},
	}, nil
}

func (s *Server) initialized(
	context *glsp.Context,
	params *protocol.InitializedParams,
) error {
	log.Info("client initialized")
	return nil
}

func (s *Server) shutdown(context *glsp.Context) error {
	s.mu.Lock()
	coord, cancel := s.coord, s.cancel
	sched, analyzer, cache := s.sched, s.analyzer, s.cache
	s.coord, s.cancel = nil, nil
	s.sched, s.analyzer, s.cache = nil, nil, nil
	s.ws = nil
	s.mu.Unlock()

	if coord == nil {
		return nil
	}
	cancel()
	coord.Dispose()
	coord.Wait()
	sched.StopScheduler()
	analyzer.Close()
	if err := cache.Close(); err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}
	log.Info("shut down")
	return nil
}

func (s *Server) setTrace(
	context *glsp.Context,
	params *protocol.SetTraceParams,
) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func contextWithCancel() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

// resolveCachePath returns the configured cache path, or a per-root database
// under the XDG state directory. Without a root the cache lives in memory.
func resolveCachePath(cfg config.Config, rootURI *protocol.DocumentUri) (string, error) {
	if cfg.CachePath != "" {
		return cfg.CachePath, nil
	}
	if rootURI == nil || *rootURI == "" {
		return store.Memory, nil
	}
	root, err := url.Parse(*rootURI)
	if err != nil {
		return "", fmt.Errorf("failed to parse root uri: %w", err)
	}

	stateBaseDir, err := getXDGStateHome(Name)
	if err != nil {
		return "", err
	}
	cacheDir := filepath.Join(stateBaseDir, url.PathEscape(root.Path))
	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return filepath.Join(cacheDir, "cache.db"), nil
}
