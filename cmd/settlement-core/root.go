package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gitlab.com/warrant1/warrant/settlement-core/internal/config"
	"gitlab.com/warrant1/warrant/settlement-core/internal/di"
)

var cfgFile string

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("SETTLEMENT")
	viper.AutomaticEnv()

	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.format", "LOG_FORMAT")
	viper.BindEnv("server.listen")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "logfmt")
	viper.SetDefault("server.listen", ":8099")
	viper.SetDefault("claim_store.dsn", "file:claims.db")
	viper.SetDefault("scheduler.metrics_cleanup_interval", "5m")
	viper.SetDefault("coordinator.cost_weight", 0.5)
	viper.SetDefault("coordinator.success_rate_weight", 0.3)
	viper.SetDefault("coordinator.latency_weight", 0.2)
	viper.SetDefault("coordinator.circuit_breaker_threshold", 0.10)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

var rootCmd = &cobra.Command{
	Use:   "settlement-core",
	Short: "Payment-channel settlement connector for EVM and XRP Ledger chains",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Println(cfg.RedactedConfigLog())

		app, err := di.NewApp(cfg)
		if err != nil {
			return fmt.Errorf("failed to build app: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := app.Start(ctx); err != nil {
			return fmt.Errorf("failed to start app: %w", err)
		}
		defer app.Stop()

		if err := app.Server.RunWithGracefulShutdown(ctx, cfg.Server.Listen); err != nil {
			return err
		}

		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to run settlement core: %v\n", err)
		os.Exit(1)
	}
}
