// Command x402mock serves a local payment-gated analysis API for trying the
// client end to end without a real backend.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	x402gin "github.com/castlens/x402client/pkg/gin"
	"github.com/castlens/x402client/pkg/logging"
)

var (
	addr         string
	rootURL      string
	payTo        string
	price        string
	network      string
	pendingPolls int
	refreshAfter time.Duration
	logCfg       logging.Config
)

var rootCmd = &cobra.Command{
	Use:          "x402mock",
	Short:        "Serve a mock payment-gated analysis API",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := logging.New(logCfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		if rootURL == "" {
			rootURL = "http://" + addr
		}

		gin.SetMode(gin.ReleaseMode)
		backend := x402gin.NewMockBackend(x402gin.MockConfig{
			PayTo:           payTo,
			Price:           price,
			Network:         network,
			ResourceRootURL: rootURL,
			PendingPolls:    pendingPolls,
			RefreshAfter:    refreshAfter,
			Logger:          logger,
		})

		srv := &http.Server{
			Addr:              addr,
			Handler:           backend.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("mock API listening", zap.String("addr", addr), zap.String("network", network), zap.String("pay_to", payTo))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:4021", "listen address")
	f.StringVar(&rootURL, "root-url", "", "externally visible scheme and host used in payment resources")
	f.StringVar(&payTo, "pay-to", x402gin.DefaultMockPayTo, "address receiving payments")
	f.StringVar(&price, "price", "0.001", "price per paid request in USDC")
	f.StringVar(&network, "network", "base-sepolia", "payment network")
	f.IntVar(&pendingPolls, "pending-polls", 2, "polls a job stays in flight before completing")
	f.DurationVar(&refreshAfter, "refresh-after", 0, "serve completed jobs older than this as updating")
	f.StringVar(&logCfg.Level, "log-level", "info", "log level")
	f.StringVar(&logCfg.Format, "log-format", logging.FormatConsole, "log format (json or console)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
