package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"livechat/pkg/auth"
	"livechat/pkg/chat"
	"livechat/pkg/poller"
	"livechat/pkg/viewport"
)

var (
	conversationFlag string
	pollInterval     time.Duration
)

// conversationFor picks the route: customers always use their own
// conversation, agents must name one.
func conversationFor(role auth.Role) (string, error) {
	if role == auth.RoleCustomer {
		return "", nil
	}
	if conversationFlag == "" {
		return "", errors.New("agents must pass --conversation <identity-id>")
	}
	return conversationFlag, nil
}

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer func() { _ = log.Sync() }()
		c := newClient(log)

		s, err := currentSession(cmd.Context(), c)
		if err != nil {
			return err
		}
		conv, err := conversationFor(s.Role)
		if err != nil {
			return err
		}
		msg, err := c.SendMessage(cmd.Context(), s, conv, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent #%d at %s\n", msg.ID, msg.CreatedAt.Local().Format("15:04:05"))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a conversation; lines typed on stdin are sent",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer func() { _ = log.Sync() }()
		c := newClient(log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := currentSession(ctx, c)
		if err != nil {
			return err
		}
		conv, err := conversationFor(s.Role)
		if err != nil {
			return err
		}

		out := newTranscript(cmd.OutOrStdout())
		view := poller.NewConversationView(c, s, conv, poller.ViewOptions{
			Interval: pollInterval,
			Logger:   log,
			OnChange: out.render,
		})
		if err := view.Open(ctx); err != nil {
			return err
		}
		defer view.Close()

		lines := make(chan string)
		go readLines(cmd.InOrStdin(), lines)

		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				if _, err := view.Send(ctx, line); err != nil {
					var sendErr *poller.SendError
					if errors.As(err, &sendErr) {
						fmt.Fprintf(cmd.ErrOrStderr(), "not sent (%v): %s\n", sendErr.Err, sendErr.Body)
					}
					if poller.IsSessionLost(err) {
						return err
					}
				}
			}
		}
	},
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*chat.MaxBodyLength)
	for sc.Scan() {
		lines <- sc.Text()
	}
}

// transcript prints each confirmed message once, plus pending sends and the
// new-messages marker.
type transcript struct {
	w       io.Writer
	mu      sync.Mutex
	printed map[int64]bool
}

func newTranscript(w io.Writer) *transcript {
	return &transcript{w: w, printed: map[int64]bool{}}
}

func (t *transcript) render(s poller.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, it := range s.Items {
		if it.Pending() {
			fmt.Fprintf(t.w, "  ...  %-8s %s\n", it.Sender, it.Body)
			continue
		}
		if t.printed[it.ID] {
			continue
		}
		t.printed[it.ID] = true
		fmt.Fprintf(t.w, "%s %-8s %s\n", it.CreatedAt.Local().Format("15:04"), it.Sender, it.Body)
	}
	if s.Scroll.Action == viewport.ActionShowAffordance {
		fmt.Fprintf(t.w, "-- %d new message(s) --\n", s.Scroll.NewMessages)
	}
	if s.UnreadCount > 0 {
		fmt.Fprintf(t.w, "(%d unread)\n", s.UnreadCount)
	}
}

func init() {
	for _, c := range []*cobra.Command{sendCmd, watchCmd} {
		c.Flags().StringVar(&conversationFlag, "conversation", "", "customer identity id (agent sessions only)")
	}
	watchCmd.Flags().DurationVar(&pollInterval, "interval", poller.DefaultInterval, "poll interval")
	rootCmd.AddCommand(sendCmd, watchCmd)
}
