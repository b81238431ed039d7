package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"livechat/pkg/client"
	"livechat/pkg/logger"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Command-line surface for the live chat server",
	Long: `chatctl talks to a live chat server the way the widget and the agent
console do: register or log in, send messages, and follow a conversation or
the roster by polling.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "chat server base URL")
	rootCmd.PersistentFlags().String("token", "", "session token (or CHATCTL_TOKEN)")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "per-request timeout")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log poll failures and other debug output")

	_ = viper.BindPFlags(rootCmd.PersistentFlags())
	viper.SetEnvPrefix("chatctl")
	viper.AutomaticEnv()
}

func newLogger() *zap.Logger {
	level := "warn"
	if viper.GetBool("verbose") {
		level = "debug"
	}
	log, err := logger.New("development", level)
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func newClient(log *zap.Logger) *client.Client {
	return client.New(viper.GetString("server"), client.WithTimeout(viper.GetDuration("timeout")), client.WithLogger(log))
}

// currentSession re-resolves the stored token, as every surface does on load.
func currentSession(ctx context.Context, c *client.Client) (client.Session, error) {
	token := strings.TrimSpace(viper.GetString("token"))
	if token == "" {
		return client.Session{}, errors.New("no session token: pass --token or set CHATCTL_TOKEN")
	}
	s := client.Session{Token: token}
	p, err := c.Validate(ctx, s)
	if err != nil {
		if errors.Is(err, client.ErrInvalidToken) {
			return client.Session{}, fmt.Errorf("%w: run register, login or agent-login again", err)
		}
		return client.Session{}, err
	}
	s.Role = p.Role
	return s, nil
}

func main() {
	Execute()
}
