package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/DominikKuenkele/sgs-housing-bot/internal/redact"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type rootOptions struct {
	configFile string
	logger     *slog.Logger
	redactor   *redact.Redactor
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{redactor: redact.New()}
	cmd := &cobra.Command{
		Use:           "sgsbot",
		Short:         "Notify subscribers about new SGS apartments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(opts.configFile); err != nil {
				return err
			}
			log, err := loggerFromViper(cmd.ErrOrStderr(), opts.redactor)
			if err != nil {
				return err
			}
			opts.logger = log
			slog.SetDefault(log)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: ./config.yaml, ~/.sgsbot/config.yaml, /etc/sgs-housing-bot/config.yaml)")
	cmd.PersistentFlags().String("data-root", "", "directory for the database and token file")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	_ = viper.BindPFlag("data_root", cmd.PersistentFlags().Lookup("data-root"))
	_ = viper.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", cmd.PersistentFlags().Lookup("log-format"))

	cmd.AddCommand(newCrawlCmd(opts))
	cmd.AddCommand(newSubscriptionCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%w\n\n%s", err, c.UsageString())
	})
	wrapRunE(cmd)
	return cmd
}

// wrapRunE prints command errors through the configured logger so cron
// output stays structured.
func wrapRunE(cmd *cobra.Command) {
	for _, c := range cmd.Commands() {
		wrapRunE(c)
	}
	if cmd.RunE == nil {
		return
	}
	run := cmd.RunE
	cmd.RunE = func(c *cobra.Command, args []string) error {
		err := run(c, args)
		if err != nil {
			slog.Error("command_failed", "command", c.CommandPath(), "error", err.Error())
		}
		return err
	}
}

func initConfig(configFile string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	setDefaults()
	viper.SetEnvPrefix("SGSBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("data_root", "SGSBOT_DATA_ROOT", "DATA_ROOT")

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.sgsbot")
		viper.AddConfigPath("/etc/sgs-housing-bot")
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func ensureDataRoot() error {
	root := dataRootFromViper()
	if root == "" {
		return fmt.Errorf("data_root is empty")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return fmt.Errorf("create data_root: %w", err)
	}
	return nil
}
