package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/comigor/fastbot-go/internal/chat"
	"github.com/comigor/fastbot-go/internal/config"
)

// fastbot chats
func chatsCmd(cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List, create and delete conversations",
	}

	// fastbot chats list
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			printChats(cmd.OutOrStdout(), a.chats.Snapshot().Conversations)
			return nil
		},
	}

	// fastbot chats new
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			conv, err := a.chats.CreateNew(cmd.Context())
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Created %s\n", color.GreenString("✓"), color.CyanString(conv.ID))
			return nil
		},
	}

	// fastbot chats delete <id>
	var yes bool
	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}

			id := args[0]
			conv, err := a.chats.Get(id)
			if err != nil {
				return fmt.Errorf("no conversation with id %s", id)
			}
			if !yes && !confirm(cmd, fmt.Sprintf("Delete Chat? %q will be removed", conv.Title)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}
			if err := a.chats.Delete(cmd.Context(), id); err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted %s\n", color.GreenString("✓"), id)
			return nil
		},
	}
	deleteCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking")

	cmd.AddCommand(listCmd, newCmd, deleteCmd)
	return cmd
}

// fastbot send <chat-id> <message...>
func sendCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "send <chat-id> <message...>",
		Short: "Send a message and print the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}

			id := args[0]
			content := strings.TrimSpace(strings.Join(args[1:], " "))
			if content == "" {
				return errors.New("message is empty")
			}
			if err := a.chats.Send(cmd.Context(), id, content); err != nil {
				if errors.Is(err, chat.ErrConversationNotFound) {
					return fmt.Errorf("no conversation with id %s", id)
				}
				return explain(err)
			}

			conv, err := a.chats.Get(id)
			if err != nil {
				return err
			}
			if n := len(conv.Messages); n > 0 && conv.Messages[n-1].Role == chat.RoleAssistant {
				fmt.Fprintln(cmd.OutOrStdout(), conv.Messages[n-1].Content)
			}
			return nil
		},
	}
}

func printChats(w io.Writer, convs []chat.Conversation) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversations yet. Start one with 'fastbot chats new'.")
		return
	}
	for _, c := range convs {
		fmt.Fprintf(w, "%s  %s %s\n",
			color.CyanString("%-8s", c.ID),
			c.Title,
			color.HiBlackString("(%d msgs)", len(c.Messages)),
		)
	}
}
