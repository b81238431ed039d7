package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <name> <email>",
	Short: "Start a chat as a first-time customer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer func() { _ = log.Sync() }()

		res, err := newClient(log).Register(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !res.IsNewUser {
			fmt.Fprintln(out, "This email already has a chat. Your access code was sent by email; run:")
			fmt.Fprintf(out, "  chatctl login %s <access-code>\n", args[1])
			return nil
		}
		fmt.Fprintf(out, "identity:    %s\n", res.Identity.ID)
		fmt.Fprintf(out, "access code: %s (keep it to resume this chat)\n", res.GeneratedSecret)
		fmt.Fprintf(out, "export CHATCTL_TOKEN=%s\n", res.Token)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <email> <access-code>",
	Short: "Resume a customer chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer func() { _ = log.Sync() }()

		s, who, err := newClient(log).Authenticate(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "welcome back, %s\nexport CHATCTL_TOKEN=%s\n", who.DisplayName, s.Token)
		return nil
	},
}

var agentLoginCmd = &cobra.Command{
	Use:   "agent-login <email> <password>",
	Short: "Sign in to the agent console",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer func() { _ = log.Sync() }()

		s, who, err := newClient(log).AgentLogin(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\nexport CHATCTL_TOKEN=%s\n", who.DisplayName, s.Token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registerCmd, loginCmd, agentLoginCmd)
}
