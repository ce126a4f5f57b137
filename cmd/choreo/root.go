package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aretw0/choreo"
	"github.com/aretw0/choreo/internal/cli"
	"github.com/aretw0/choreo/internal/config"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "choreo",
	Short: "Coordinate multi-party workflows from templates",
	Long: `choreo compiles coordination templates and drives their runs.

A template declares roles, typed slots and states. Runs move between states
as participants fill slots and raise events, and as timeouts elapse.
Runs are stored in SQLite by default; set store.driver (or CHOREO_STORE_DRIVER)
to redis or memory to change it.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .choreo.yaml)")
	rootCmd.PersistentFlags().String("store", "", "store driver: memory, redis or sqlite")
	rootCmd.PersistentFlags().String("db", "", "sqlite database path")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = v.BindPFlag("store.driver", rootCmd.PersistentFlags().Lookup("store"))
	_ = v.BindPFlag("store.sqlite.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func loadConfig() (config.Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".choreo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return config.Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return config.Load(v)
}

func jsonOutput() bool {
	return v.GetBool("json")
}

// withEngine opens the configured backend, runs fn and closes it. reg may be
// nil.
func withEngine(ctx context.Context, reg prometheus.Registerer, fn func(context.Context, config.Config, *choreo.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := cli.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	eng, backend, err := cli.NewEngine(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(ctx, cfg, eng)
}
