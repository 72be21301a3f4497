package main

import (
	"github.com/aretw0/flowchat/internal/cli"
	gateway "github.com/aretw0/flowchat/pkg/adapters/http"
	"github.com/aretw0/flowchat/pkg/observability"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Long: `Exposes conversations over a JSON API, streams state diffs over SSE and
relays embed customization updates over websockets.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Gateway.Addr = addr
		}

		logger, err := cli.NewLogger(cfg.Log, debugFlag(cmd))
		if err != nil {
			return err
		}

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		persistence, err := cli.NewPersistence(sigCtx, cfg.Store, logger)
		if err != nil {
			return err
		}
		defer persistence.Close()

		opts := []gateway.Option{
			gateway.WithLogger(logger),
			gateway.WithDefaultBotID(cfg.Backend.BotID),
			gateway.WithCallTimeout(cfg.Gateway.CallTimeout),
		}
		var metrics *observability.Metrics
		if cfg.Gateway.Metrics {
			metrics = observability.NewMetrics()
			opts = append(opts, gateway.WithMetrics(metrics))
		}

		engine, err := newServerEngine(cfg.Backend, logger, debugFlag(cmd), metrics)
		if err != nil {
			return err
		}

		handler := gateway.NewHandler(engine, persistence.Sessions(logger), opts...)
		logger.Info("Starting flowchat gateway", "backend", cfg.Backend.URL, "store", cfg.Store.Kind, "metrics", cfg.Gateway.Metrics)
		return cli.ListenAndServe(sigCtx, cfg.Gateway.Addr, handler, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides gateway.addr)")
}
