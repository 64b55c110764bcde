package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/comigor/fastbot-go/internal/auth"
	"github.com/comigor/fastbot-go/internal/config"
)

// fastbot login
func loginCmd(cfg func() *config.Config) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer a.Close()

			password, err := readPassword("Password: ", cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			a.form.SetFields(auth.Fields{Email: email, Password: password})
			if !a.form.Submit(cmd.Context()) {
				return errors.New(a.form.State().Error)
			}

			cred, _ := a.session.Credential()
			fmt.Fprintf(cmd.OutOrStdout(), "%s Signed in as %s\n", color.GreenString("✓"), color.CyanString(cred.DisplayName))
			fmt.Fprintf(cmd.OutOrStdout(), "  %d conversation(s)\n", len(a.chats.Snapshot().Conversations))
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// fastbot signup
func signupCmd(cfg func() *config.Config) *cobra.Command {
	var email, fullName string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer a.Close()

			password, err := readPassword("Password: ", cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				again, err := readPassword("Confirm password: ", cmd.InOrStdin(), cmd.OutOrStdout())
				if err != nil {
					return err
				}
				if again != password {
					return errors.New("passwords do not match")
				}
			}

			a.form.ToggleMode()
			a.form.SetFields(auth.Fields{Email: email, Password: password, FullName: fullName})
			a.form.Submit(cmd.Context())
			st := a.form.State()
			if st.Error != "" {
				return errors.New(st.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("✓"), st.Notice)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&fullName, "name", "n", "", "Full name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// fastbot logout
func logoutCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓")+" Logged out")
			return nil
		},
	}
}

// fastbot whoami
func whoamiCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer a.Close()

			cred, ok := a.session.Credential()
			if !ok {
				return errors.New("not logged in")
			}
			name := cred.DisplayName
			if name == "" {
				name = "(no display name)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
}

// confirm asks a yes/no question on stdin.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)
	answer, err := readLine(bufio.NewReader(cmd.InOrStdin()))
	if err != nil {
		return false
	}
	return answer == "y" || answer == "Y" || answer == "yes"
}
