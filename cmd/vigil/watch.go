package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vigil/internal/analysis"
	"vigil/internal/diagnostics"
	"vigil/internal/feed"
	"vigil/internal/report"
	"vigil/internal/scheduler"
	"vigil/internal/store"
	"vigil/internal/watch"
	"vigil/internal/workspace"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] <directory>",
	Short: "Validate a directory and keep validating it as files change",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Bool("once", false, "exit after the initial scan has been validated")
	watchCmd.Flags().String("feed-addr", "", "stream marker changes over a websocket on this address")
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := commonlog.GetLogger("vigil.watch")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	once, _ := cmd.Flags().GetBool("once")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := store.Open(cfg.CachePath)
	if err != nil {
		return err
	}
	defer cache.Close()

	analyzer, err := analysis.New(cfg, cache)
	if err != nil {
		return err
	}
	defer analyzer.Close()

	sched := scheduler.NewScheduler(64, nil)
	sched.RunScheduler()
	defer sched.StopScheduler()

	var f *feed.Feed
	if addr, _ := cmd.Flags().GetString("feed-addr"); addr != "" && !once {
		f = feed.New()
		defer f.Close()
		srv := &http.Server{Addr: addr, Handler: f, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Infof("serving feed on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("feed server: %v", err)
			}
		}()
		defer srv.Close()
	}

	printer := report.NewPrinter(cmd.OutOrStdout())
	var watcher *watch.Watcher
	ws := workspace.New(workspace.WithPublisher(func(uri string, version int32, markers []diagnostics.Marker) {
		printer.Print(watcher.Path(uri), markers)
		if f != nil {
			f.Publish(uri, version, markers)
		}
	}))

	watcher, err = watch.New(watch.Config{
		Root:       args[0],
		Include:    cfg.Include,
		Exclude:    cfg.Exclude,
		Extensions: cfg.Extensions,
	}, ws, sched)
	if err != nil {
		return err
	}
	defer watcher.Close()

	coord := diagnostics.New(ws, cfg.Selector(), analyzer,
		diagnostics.WithDebounce(time.Duration(cfg.Debounce)),
		diagnostics.WithScheduler(sched),
		diagnostics.WithContext(ctx),
	)
	defer func() {
		coord.Dispose()
		coord.Wait()
	}()

	n, err := watcher.Scan(ctx)
	if err != nil {
		return err
	}
	coord.Wait()

	if once {
		printer.Summary(n)
		if errs, _ := printer.Counts(); errs > 0 {
			return fmt.Errorf("found %d error(s)", errs)
		}
		return nil
	}

	log.Noticef("watching %d file(s) under %s", n, args[0])
	return watcher.Run(ctx)
}
