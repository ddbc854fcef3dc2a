// Command askstream asks the DevSecrin backend questions from the terminal
// and relays answer streams to browsers and scripts.
//
// Usage:
//
//	askstream ask "How does the login flow work?" --agent pathfinder
//	askstream chat --agent diagnostician
//	askstream agents
//	askstream relay --listen 127.0.0.1:8090
//	askstream relay --stdio < requests.jsonl
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devsecrin/askstream/pkg/config"
)

var (
	configPath string
	baseURL    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "askstream",
	Short: "Streaming client for the DevSecrin ask endpoint",
	Long: `askstream streams answers from the DevSecrin /ask endpoint as they are
generated, and can relay those streams over SSE, WebSocket or JSONL.

Settings come from askstream.yaml (or --config), overridden by
ASKSTREAM_BASE_URL / ASKSTREAM_API_URL and ASKSTREAM_LISTEN.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./askstream.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Backend API root (overrides config and environment)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig resolves the config file, applies the --base-url flag and
// validates the result. It also returns the file path actually used.
func loadConfig() (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path = configPath
		err  error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, path, err = config.LoadDefault()
	}
	if err != nil {
		return nil, "", err
	}

	if baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}
