package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/uiuxdeveloper-io/ledgerlight/core"
	"github.com/uiuxdeveloper-io/ledgerlight/node"
	"github.com/uiuxdeveloper-io/ledgerlight/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{Use: "ledgerlightctl"}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the ledgerlightctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("ledgerlightctl dev")
		},
	}
}

// serveCmd opens a node connection for the given account address, mounts a
// transfer account system on it, and serves a small diagnostics HTTP
// surface reporting liveness, balance and unspent particles. It is ambient wiring, not
// a feature in its own right: nothing here belongs to the ledger
// projection core itself.
func serveCmd() *cobra.Command {
	var addr string
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "open a node connection and serve a diagnostics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.StandardLogger()

			cfg, err := config.LoadFromEnv()
			if err != nil {
				log.WithError(err).Warn("ledgerlightctl: using defaults, config load failed")
				cfg = &config.AppConfig
			}
			if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
				log.SetLevel(lvl)
			}

			address, err := core.ParseAddress(addr)
			if err != nil {
				return fmt.Errorf("ledgerlightctl: parse --address: %w", err)
			}

			account := core.NewAccount(address, log)
			transfers := core.NewTransferAccountSystem(address, log)
			if err := account.Register(transfers); err != nil {
				return fmt.Errorf("ledgerlightctl: register transfer system: %w", err)
			}

			conn := node.NewConnection(cfg.Node.URL, nil, log)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := conn.Open(ctx); err != nil {
				return fmt.Errorf("ledgerlightctl: open node connection: %w", err)
			}
			defer conn.Close()

			updates, err := conn.Subscribe(ctx, address, true)
			if err != nil {
				return fmt.Errorf("ledgerlightctl: subscribe: %w", err)
			}
			go func() {
				for u := range updates {
					if err := account.Dispatch(ctx, u); err != nil {
						log.WithError(err).Warn("ledgerlightctl: dispatch failed")
					}
				}
			}()

			srv := newDiagnosticsServer(httpAddr, transfers, log)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.WithError(err).Warn("ledgerlightctl: diagnostics server stopped")
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "address", "", "account address to track, as hex")
	cmd.Flags().StringVar(&httpAddr, "http", ":8090", "diagnostics HTTP listen address")
	return cmd
}

func newDiagnosticsServer(addr string, transfers *core.TransferAccountSystem, log *logrus.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/balance", func(w http.ResponseWriter, r *http.Request) {
		bal := transfers.GetBalance()
		out := make(map[string]string, len(bal))
		for ref, amt := range bal {
			out[ref.String()] = amt.String()
		}
		writeJSON(w, out)
	})

	r.Get("/unspent", func(w http.ResponseWriter, r *http.Request) {
		particles := transfers.GetUnspentConsumables()
		out := make([]string, 0, len(particles))
		for _, p := range particles {
			out = append(out, p.ID.String())
		}
		writeJSON(w, out)
	})

	return &http.Server{Addr: addr, Handler: r}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
