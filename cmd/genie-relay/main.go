// Package main is the entry point for the Genie relay.
package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/capitalize-ai/genie-relay/internal/config"
	"github.com/capitalize-ai/genie-relay/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	serveCmd := newServeCommand()
	root := &cobra.Command{
		Use:          "genie-relay",
		Short:        "Relay Microsoft Teams questions to a Databricks Genie space",
		SilenceUsage: true,
		RunE:         serveCmd.RunE,
	}
	root.AddCommand(serveCmd, newAskCommand(), newEventsCommand())
	return root
}

// setup loads configuration and installs the process logger.
func setup() (*config.Config, *logger.Logger, error) {
	cfg := config.Load()

	var (
		log *logger.Logger
		err error
	)
	if cfg.Environment == "development" {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "create logger")
	}
	logger.SetGlobal(log)
	return cfg, log, nil
}
