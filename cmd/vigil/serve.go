package main

import (
	"errors"
	"net/http"
	"time"

	"vigil/internal/feed"
	"vigil/internal/metrics"
	"vigil/internal/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the language server over stdio",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-addr", "", "serve /metrics and the /feed websocket on this address, e.g. :9464")
	serveCmd.Flags().Bool("debug", false, "log every protocol message")
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := commonlog.GetLogger("vigil.serve")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	opts := server.Options{Config: cfg, Debug: debug}

	if addr, _ := cmd.Flags().GetString("http-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		observer, err := metrics.New(reg)
		if err != nil {
			return err
		}
		opts.Observer = observer

		f := feed.New()
		defer f.Close()
		opts.Tap = f.Publish

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		mux.Handle("/feed", f)
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Infof("serving metrics and feed on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("http server: %v", err)
			}
		}()
		defer srv.Close()
	}

	return server.New(opts).RunStdio()
}
