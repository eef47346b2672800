package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/orderarb/config"
	"github.com/michaelpento.lv/orderarb/utils"
	"github.com/michaelpento.lv/orderarb/utils/metrics"
)

var startDryRun bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Poll the order books until a trade is made or the bot is interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		ctx := cmd.Context()

		cfg, err := loadConfig(log)
		if err != nil {
			log.Error("Failed to load config", zap.Error(err))
			return err
		}

		var reg prometheus.Registerer
		if cfg.Monitoring.PrometheusEnabled {
			metrics.Initialize(log)
			reg = metrics.Registry()
			srv := serveMetrics(cfg.Monitoring, log)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		b, closeNode, err := newBot(ctx, cfg, startDryRun, reg, log)
		if err != nil {
			log.Error("Failed to create bot", zap.Error(err))
			return err
		}
		defer closeNode()

		return b.Run(ctx)
	},
}

func serveMetrics(cfg config.MonitoringConfig, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              cfg.PrometheusListen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Serving metrics", zap.String("listen", cfg.PrometheusListen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().BoolVar(&startDryRun, "dry-run", false, "build trades without submitting them")
}
