package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/comigor/fastbot-go/internal/config"
	"github.com/comigor/fastbot-go/internal/devserver"
)

// fastbot serve
func serveCmd(cfg func() *config.Config) *cobra.Command {
	var responder string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development backend",
		Long:  "Serve the chat and auth API from memory, for local development.\nReplies come from the echo responder or an OpenAI-compatible model.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := cfg()
			if responder != "" {
				c.DevServer.Responder = responder
			}
			r, err := devserver.NewResponder(c.DevServer, c.LLM)
			if err != nil {
				return err
			}
			addr := net.JoinHostPort(c.DevServer.Host, c.DevServer.Port)
			fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s (responder: %s)\n", addr, c.DevServer.Responder)
			return devserver.New(r).ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVarP(&responder, "responder", "r", "", "Reply source: echo or llm")
	return cmd
}
