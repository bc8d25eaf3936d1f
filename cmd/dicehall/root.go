// cmd/dicehall/root.go
package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jason-s-yu/dicehall/internal/config"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

type rootOptions struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "dicehall",
		Short:         "Multiplayer dice game server",
		Long:          "dicehall hosts lobby-based Yahtzee-style sessions for human and bot players over HTTP and websockets.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newTokenCmd(opts),
	)
	return rootCmd
}

// load reads configuration and configures the standard logger from it.
func (o *rootOptions) load(out io.Writer) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.envFiles...)
	if err != nil {
		return cfg, nil, err
	}
	log, err := newLogger(cfg.LogLevel, cfg.LogFormat, out)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func newLogger(level, format string, out io.Writer) (*logrus.Logger, error) {
	log := logrus.StandardLogger()
	log.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return log, nil
}
