/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/devvluca/EclesIA/internal/eclesia"
	"github.com/devvluca/EclesIA/internal/eclesia/config"
	"github.com/devvluca/EclesIA/internal/eclesia/session"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	conversationRef string
	newConversation bool
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Ask EclesIA a question",
	Long: `Send a message to EclesIA and stream the reply.

The message and the reply are saved in a conversation. By default the most
recent conversation is continued; use --conversation to pick another one or
--new to start a fresh conversation. The first question names the conversation.

For interactive multi-turn conversations, use 'eclesia conversations start' instead.

If no message is provided as an argument, it reads from stdin.

Examples:
  eclesia chat "O que é a IECB?"
  eclesia chat -n "Quem foi Thomas Cranmer?"
  eclesia chat -c 550e8400 "E sobre o Livro de Oração Comum?"
  echo "O que é a Eucaristia?" | eclesia chat`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if conversationRef != "" && newConversation {
			return fmt.Errorf("cannot specify both --conversation and --new")
		}

		message, err := readMessage(args)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		mgr, err := newManager(ctx, cfg)
		if err != nil {
			return err
		}
		registry := mgr.Registry()

		id := registry.Active()
		switch {
		case newConversation:
			id, err = registry.Create(ctx)
			if err != nil {
				return fmt.Errorf("creating conversation: %w", err)
			}
		case conversationRef != "":
			id, err = registry.Resolve(conversationRef)
			if err != nil {
				return fmt.Errorf("finding conversation: %w", err)
			}
		}

		if verbose {
			if conv, ok := registry.Get(id); ok {
				fmt.Fprintf(os.Stderr, "Conversation: %s (%s)\n", conv.GetShortID(), conv.GetDisplayName())
			}
		}

		_, err = streamReply(ctx, mgr, id, message, os.Stdout, "", false)
		return err
	},
}

// readMessage takes the message from args, or from stdin when it is piped.
func readMessage(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no message provided\n\nPass it as an argument or pipe it on stdin, or use 'eclesia conversations start'")
	}
	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading from stdin: %w", err)
	}
	return strings.TrimSpace(string(input)), nil
}

// streamReply sends text in conversation id and writes fragments to out as
// they arrive, preceded by prefix. With spinner set, a spinner runs until the
// first fragment.
func streamReply(ctx context.Context, mgr *session.Manager, id, text string, out io.Writer, prefix string, spinner bool) (eclesia.Message, error) {
	var done chan bool
	if spinner {
		done = make(chan bool)
		go showSpinner(done)
	}
	stopSpinner := func() {
		if done != nil {
			done <- true
			close(done)
			done = nil
		}
	}
	// Observers run on the sending goroutine, so started needs no lock.
	started := false
	start := func() {
		stopSpinner()
		if !started {
			started = true
			fmt.Fprint(out, prefix)
		}
	}

	unsubscribe := mgr.Subscribe(func(ev session.Event) {
		if ev.ConversationID != id {
			return
		}
		switch ev.Kind {
		case session.EventFragment:
			start()
			fmt.Fprint(out, ev.Fragment)
		case session.EventRenamed:
			if verbose {
				fmt.Fprintf(os.Stderr, "\nConversation named %q\n", ev.Name)
			}
		}
	})
	defer unsubscribe()

	reply, err := mgr.Send(ctx, id, text)
	if err != nil && reply.Content != "" {
		if started {
			fmt.Fprintln(out)
		}
		stopSpinner()
		fmt.Fprint(out, prefix, reply.Content)
	} else {
		start()
	}
	fmt.Fprintln(out)

	if err != nil {
		if errors.Is(err, session.ErrEmptyMessage) || errors.Is(err, session.ErrSendInFlight) || errors.Is(err, session.ErrNoIdentity) {
			return reply, err
		}
		return reply, fmt.Errorf("getting reply: %w", err)
	}
	return reply, nil
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&conversationRef, "conversation", "c", "", "Continue a conversation (short ID, full ID, or 'latest')")
	chatCmd.Flags().BoolVarP(&newConversation, "new", "n", false, "Start a new conversation")
}
