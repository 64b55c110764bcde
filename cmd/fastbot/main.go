// Package main provides the fastbot CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/comigor/fastbot-go/internal/config"
	"github.com/comigor/fastbot-go/internal/logger"
	"github.com/comigor/fastbot-go/internal/tui"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfg     *config.Config
		logFile *os.File
	)

	root := &cobra.Command{
		Use:           "fastbot",
		Short:         "Terminal client for the fastbot chat service",
		Long:          "fastbot: chat with the assistant from your terminal.\n\nRun without a command to open the interactive interface.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger.SetLevel(cfg.Log.Level)

			// the server logs to stderr; everything else shares the terminal
			// with the user and logs to a file
			if cfg.Log.File == "" && cmd.Name() == "serve" {
				return nil
			}
			logFile, err = openLog(cfg.Log.File)
			if err != nil {
				return err
			}
			logger.SetOutput(logFile)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logFile != nil {
				logFile.Close()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return tui.Run(cmd.Context(), tui.Deps{Session: a.session, Chats: a.chats, Form: a.form})
		},
	}

	cfgFn := func() *config.Config { return cfg }
	root.AddCommand(
		loginCmd(cfgFn),
		signupCmd(cfgFn),
		logoutCmd(cfgFn),
		whoamiCmd(cfgFn),
		chatsCmd(cfgFn),
		sendCmd(cfgFn),
		serveCmd(cfgFn),
	)
	return root
}
