// Package main provides the quotesyncd daemon: the local cache and sync
// layer exposed over REST/WebSocket on localhost, plus admin subcommands
// that operate directly on the local database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/floridasonconsulting/quoteit-sync/cmd/quotesyncd/handlers"
	"github.com/floridasonconsulting/quoteit-sync/internal/logging"
	"github.com/floridasonconsulting/quoteit-sync/internal/remote"
	"github.com/floridasonconsulting/quoteit-sync/internal/repo"
)

// envConfig is the daemon configuration, read from the environment (a
// .env file next to the binary is picked up automatically).
type envConfig struct {
	Addr       string // QUOTESYNC_ADDR
	DataDir    string // QUOTESYNC_DATA_DIR
	BackendURL string // QUOTESYNC_BACKEND_URL
	APIKey     string // QUOTESYNC_API_KEY
	LogFile    string // QUOTESYNC_LOG_FILE
	LogLevel   string // QUOTESYNC_LOG_LEVEL
}

func loadConfig() envConfig {
	cfg := envConfig{
		Addr:       getenv("QUOTESYNC_ADDR", "localhost:8095"),
		DataDir:    getenv("QUOTESYNC_DATA_DIR", "./data"),
		BackendURL: os.Getenv("QUOTESYNC_BACKEND_URL"),
		APIKey:     os.Getenv("QUOTESYNC_API_KEY"),
		LogFile:    os.Getenv("QUOTESYNC_LOG_FILE"),
		LogLevel:   getenv("QUOTESYNC_LOG_LEVEL", "info"),
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// initLogging points the global logger at stderr or a rotating log file.
func initLogging(cfg envConfig) {
	level := logging.LogLevel(strings.ToUpper(cfg.LogLevel))
	if cfg.LogFile == "" {
		logging.Init(os.Stderr, level)
		return
	}
	logging.Init(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
	}, level)
}

// buildRepository wires the full stack from the environment config.
func buildRepository(cfg envConfig) (*repo.Repository, error) {
	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("QUOTESYNC_BACKEND_URL is not set")
	}
	backend := remote.NewHTTPBackend(remote.HTTPConfig{
		BaseURL: cfg.BackendURL,
		APIKey:  cfg.APIKey,
	})
	return repo.New(repo.Options{
		DataDir: cfg.DataDir,
		Backend: backend,
		Logger:  logging.Get(),
	})
}

func main() {
	cfg := loadConfig()
	initLogging(cfg)

	rootCmd := &cobra.Command{
		Use:          "quotesyncd",
		Short:        "Local cache and sync daemon for the quoting app",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd(cfg), statusCmd(cfg), failedCmd(cfg), purgeCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(cfg envConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST/WebSocket server on localhost",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := buildRepository(cfg)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			r.Start(ctx)
			r.SetOnline(true)

			hub := NewWSHub(cfg.Addr)
			defer r.Subscribe(hub.BroadcastSyncStatus)()

			mux := http.NewServeMux()
			handlers.Register(mux, r)
			mux.HandleFunc("/ws", HandleWebSocket(hub))
			mux.HandleFunc("/api/health", func(w http.ResponseWriter, req *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"status":"ok","service":"quotesyncd"}`))
			})

			srv := &http.Server{Addr: cfg.Addr, Handler: mux}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			logging.Info("quotesyncd listening", map[string]interface{}{"addr": cfg.Addr})

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Info("shutting down", map[string]interface{}{"signal": sig.String()})
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
}

func statusCmd(cfg envConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print sync status from the local database",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := buildRepository(cfg)
			if err != nil {
				return err
			}
			defer r.Close()
			return printJSON(cmd, r.Status())
		},
	}
}

func failedCmd(cfg envConfig) *cobra.Command {
	failed := &cobra.Command{
		Use:   "failed",
		Short: "Inspect and manage the failed-queue",
	}

	failed.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List entries parked in the failed-queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := buildRepository(cfg)
			if err != nil {
				return err
			}
			defer r.Close()
			entries, err := r.FailedChanges()
			if err != nil {
				return err
			}
			return printJSON(cmd, entries)
		},
	})

	failed.AddCommand(&cobra.Command{
		Use:   "retry <seq>",
		Short: "Requeue a failed entry with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sequence number %q", args[0])
			}
			r, err := buildRepository(cfg)
			if err != nil {
				return err
			}
			defer r.Close()
			if err := r.RetryFailed(seq); err != nil {
				return err
			}
			cmd.Printf("entry %d requeued\n", seq)
			return nil
		},
	})

	failed.AddCommand(&cobra.Command{
		Use:   "discard <seq>",
		Short: "Drop a failed entry permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sequence number %q", args[0])
			}
			r, err := buildRepository(cfg)
			if err != nil {
				return err
			}
			defer r.Close()
			if err := r.DiscardFailed(seq); err != nil {
				return err
			}
			cmd.Printf("entry %d discarded\n", seq)
			return nil
		},
	})

	return failed
}

func purgeCmd(cfg envConfig) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Clear all local records, queues and caches",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("purge deletes all local data; rerun with --yes to confirm")
			}
			r, err := buildRepository(cfg)
			if err != nil {
				return err
			}
			defer r.Close()
			if err := r.ClearAll(); err != nil {
				return err
			}
			cmd.Println("local data cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the purge")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}
