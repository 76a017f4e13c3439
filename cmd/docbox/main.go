package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/docboxhq/docbox/internal/client"
	"github.com/docboxhq/docbox/internal/client/config"
	"github.com/docboxhq/docbox/internal/utils"
	"github.com/docboxhq/docbox/internal/version"
)

var home, _ = os.UserHomeDir()

var rootCmd = &cobra.Command{
	Use:     "docbox",
	Short:   "DocBox offline-first document sync client",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig()
		if err != nil {
			return err
		}

		cmd.SilenceUsage = true

		c, err := client.New(cfg, nil)
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		return c.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "DocBox config file")
	rootCmd.PersistentFlags().StringP("datadir", "d", config.DefaultDataDir, "DocBox data directory")
	rootCmd.PersistentFlags().StringP("server", "s", config.DefaultServerURL, "DocBox server URL")
	rootCmd.PersistentFlags().StringP("token", "t", "", "DocBox auth token")
}

func buildConfig() (*config.Config, error) {
	cfg := &config.Config{
		Path:           viper.ConfigFileUsed(),
		DataDir:        viper.GetString("data_dir"),
		ServerURL:      viper.GetString("server_url"),
		AuthToken:      viper.GetString("auth_token"),
		ClientURL:      viper.GetString("client_url"),
		ClientToken:    viper.GetString("client_token"),
		IgnorePatterns: viper.GetStringSlice("ignore_patterns"),
	}
	if cfg.ClientURL == "" {
		cfg.ClientURL = config.DefaultClientURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".docbox"))
		viper.AddConfigPath(filepath.Join(home, ".config", "docbox"))
		viper.SetConfigName("config")
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("server_url", cmd.Flags().Lookup("server"))
	viper.BindPFlag("auth_token", cmd.Flags().Lookup("token"))

	viper.SetEnvPrefix("DOCBOX")
	viper.AutomaticEnv()

	return nil
}

func setupLogging() (func(), error) {
	logFile := config.DefaultLogFilePath
	if err := utils.EnsureParent(logFile); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))
	return func() { file.Close() }, nil
}

func main() {
	// dev convenience; absent .env is fine
	_ = godotenv.Load()

	closeLogs, err := setupLogging()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
