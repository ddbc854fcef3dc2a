package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/devsecrin/askstream/pkg/ask"
	"github.com/devsecrin/askstream/pkg/config"
	"github.com/devsecrin/askstream/pkg/transport"
)

const shutdownTimeout = 5 * time.Second

var (
	relayListen string
	relayStdio  bool
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay answer streams over SSE, WebSocket or JSONL",
	Long: `Serves POST /ask/stream (SSE), GET /ask/ws (WebSocket), GET /agents and
GET /healthz, forwarding each request to the backend and relaying the answer
as it streams.

With --stdio, reads one JSON request per line from stdin and writes JSONL
envelopes to stdout instead.

When a config file is in use, edits to it swap the backend client without a
restart.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		if relayListen != "" {
			cfg.Relay.Listen = relayListen
		}

		log := newLogger()
		hcfg := transport.HandlerConfig{
			Client:         ask.NewClient(cfg.ClientConfig(log)),
			Agent:          cfg.Defaults.Agent,
			Options:        cfg.RequestOptions(),
			OriginPatterns: cfg.Relay.OriginPatterns,
			Logger:         log,
		}
		ctx := cmd.Context()

		if relayStdio {
			errCh := make(chan error, 1)
			go func() { errCh <- transport.ServeStdio(ctx, hcfg, cmd.InOrStdin(), cmd.OutOrStdout()) }()
			select {
			case err := <-errCh:
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			case <-ctx.Done():
				return nil
			}
		}

		handler := transport.NewHandler(hcfg)
		if path != "" {
			watcher := config.NewWatcher(path, func(next *config.Config) {
				if baseURL != "" {
					next.Backend.BaseURL = baseURL
				}
				handler.SetClient(ask.NewClient(next.ClientConfig(log)))
			}, log)
			go func() {
				if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("relay: config watcher stopped", "path", path, "err", err)
				}
			}()
		}

		srv := &http.Server{
			Addr:              cfg.Relay.Listen,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			log.Info("relay: listening", "addr", srv.Addr, "backend", cfg.Backend.BaseURL)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("relay: shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.Flags().StringVarP(&relayListen, "listen", "l", "", "Listen address (default "+config.DefaultListen+")")
	relayCmd.Flags().BoolVar(&relayStdio, "stdio", false, "Serve JSONL requests on stdin/stdout")
}

