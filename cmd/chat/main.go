// Package main is a terminal chat client for the support API.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/support-chat/support-agent/pkg/client"
	"github.com/support-chat/support-agent/pkg/logger"
)

type options struct {
	server     string
	sessionDir string
	timeout    time.Duration
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "support-chat",
		Short: "Chat with the support agent from a terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			session, err := opts.session()
			if err != nil {
				return err
			}
			return repl(ctx, session, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	server := os.Getenv("SUPPORT_CHAT_URL")
	if server == "" {
		server = "http://localhost:3000"
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", server, "chat API base URL")
	flags.StringVar(&opts.sessionDir, "session-dir", "", "directory holding the session handle (default: user config dir)")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "HTTP timeout per request")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log client errors to stderr")

	cmd.AddCommand(newHistoryCmd(opts))
	return cmd
}

func newHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the stored conversation and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := opts.session()
			if err != nil {
				return err
			}
			if err := session.Start(cmd.Context()); err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), session.Messages())
			return nil
		},
	}
}

func (o *options) session() (*client.Session, error) {
	store, err := client.NewFileSessionStore(o.sessionDir)
	if err != nil {
		return nil, err
	}

	log := logger.NewNop()
	if o.verbose {
		if log, err = logger.NewDevelopment(); err != nil {
			return nil, err
		}
	}

	api := client.NewAPIClient(o.server, &http.Client{Timeout: o.timeout})
	return client.NewSession(api, store, log), nil
}

func repl(ctx context.Context, session *client.Session, in io.Reader, out io.Writer) error {
	if err := session.Start(ctx); err != nil {
		return err
	}
	printMessages(out, session.Messages())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := scanner.Text()
		if cmd := strings.TrimSpace(line); cmd == "/quit" || cmd == "/exit" {
			return nil
		}

		reply, err := session.Send(ctx, line)
		if errors.Is(err, client.ErrMessageTooLong) {
			fmt.Fprintf(out, "! %v\n", err)
			continue
		}
		if err != nil {
			return err
		}
		if reply != nil {
			printMessages(out, []client.Message{*reply})
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func printMessages(out io.Writer, msgs []client.Message) {
	for _, m := range msgs {
		who := "you"
		if m.Sender != client.SenderUser {
			who = "agent"
		}
		fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Local().Format("3:04 PM"), who, m.Content)
	}
}
