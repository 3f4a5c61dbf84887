package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"
	"github.com/devvluca/EclesIA/internal/eclesia"
	"github.com/devvluca/EclesIA/internal/eclesia/config"
	"github.com/devvluca/EclesIA/internal/eclesia/conversation"
	"github.com/devvluca/EclesIA/internal/eclesia/session"
	"github.com/spf13/cobra"
)

// conversationsCmd represents the conversations command
var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
	Long: `Manage your conversations with EclesIA: list, view, rename and delete them,
or start an interactive chat.

Conversations are stored remotely and follow you across devices. The remote
store removes conversations 45 days after they were created.`,
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations grouped by age",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}

		active := registry.Active()
		groups := registry.BucketByAge(time.Now())

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, bucket := range conversation.Buckets {
			convs := groups[bucket]
			if len(convs) == 0 {
				continue
			}
			fmt.Fprintf(w, "%s\n", bucket)
			for _, conv := range convs {
				marker := " "
				if conv.ID == active {
					marker = "*"
				}
				fmt.Fprintf(w, "%s %s\t%s\t%d\t%s\n",
					marker,
					conv.GetShortID(),
					conv.CreatedAt.Local().Format("2006-01-02 15:04"),
					conv.MessageCount(),
					conv.GetDisplayName(),
				)
			}
			fmt.Fprintln(w, "\t\t\t")
		}
		w.Flush()

		if expiring := len(groups[conversation.BucketExpiring]); expiring > 0 {
			fmt.Printf("%d conversation(s) will soon be removed. Use 'eclesia conversations clear' to delete them now.\n", expiring)
		}
		fmt.Println("Use 'eclesia conversations show <id>' to view a conversation.")
		return nil
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation and its messages",
	Long: `Show a conversation including all messages.

The ID can be a short ID (minimum 4 characters), full UUID, or "latest" for the most recent conversation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		id, err := registry.Resolve(args[0])
		if err != nil {
			return fmt.Errorf("finding conversation: %w", err)
		}
		conv, _ := registry.Get(id)

		fmt.Printf("Conversation: %s\n", conv.ID)
		fmt.Printf("Name: %s\n", conv.GetDisplayName())
		fmt.Printf("Created: %s\n", conv.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Messages: %d\n", conv.MessageCount())
		fmt.Println()

		if conv.MessageCount() == 0 {
			fmt.Println(eclesia.WelcomeMessage)
			return nil
		}
		printMessages(os.Stdout, conv.Messages)

		fmt.Printf("\nContinue this conversation with:\n  eclesia chat -c %s \"your message\"\n", conv.GetShortID())
		return nil
	},
}

var conversationsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create an empty conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		id, err := registry.Create(cmd.Context())
		if err != nil {
			return fmt.Errorf("creating conversation: %w", err)
		}
		conv, _ := registry.Get(id)
		fmt.Printf("Conversation created: %s\n", conv.GetShortID())
		return nil
	},
}

var conversationsRenameCmd = &cobra.Command{
	Use:   "rename <id> [name]",
	Short: "Rename a conversation",
	Long: `Rename a conversation. A blank name resets it to "` + eclesia.DefaultConversationName + `".

The ID can be a short ID (minimum 4 characters), full UUID, or "latest" for the most recent conversation.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		id, err := registry.Resolve(args[0])
		if err != nil {
			return fmt.Errorf("finding conversation: %w", err)
		}

		var name string
		if len(args) > 1 {
			name = args[1]
		}
		if err := registry.Rename(cmd.Context(), id, name); err != nil {
			return fmt.Errorf("renaming conversation: %w", err)
		}
		conv, _ := registry.Get(id)
		fmt.Printf("Conversation %s renamed to \"%s\".\n", conv.GetShortID(), conv.GetDisplayName())
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Long: `Delete a conversation and all its messages permanently.

The ID can be a short ID (minimum 4 characters), full UUID, or "latest" for the most recent conversation.

Warning: This action cannot be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		id, err := registry.Resolve(args[0])
		if err != nil {
			return fmt.Errorf("finding conversation: %w", err)
		}
		conv, _ := registry.Get(id)

		if !confirm("Are you sure you want to delete conversation %s (%s)?", conv.GetShortID(), conv.GetDisplayName()) {
			fmt.Println("Deletion cancelled.")
			return nil
		}

		if err := registry.Delete(cmd.Context(), id); err != nil {
			return fmt.Errorf("deleting conversation: %w", err)
		}
		fmt.Printf("Conversation %s deleted successfully.\n", conv.GetShortID())
		return nil
	},
}

var conversationsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete old conversations",
	Long: `Delete old conversations permanently.

By default, deletes conversations that are about to be removed by the remote
store (created 45 days ago or more).
Use --before to specify a date, or --all to delete all conversations.

Warning: This action cannot be undone.

Examples:
  eclesia conversations clear                      # Delete conversations about to expire
  eclesia conversations clear --before 2024-01-01  # Delete conversations created before 2024-01-01
  eclesia conversations clear --before 2024-12     # Delete conversations created before 2024-12-01
  eclesia conversations clear --all                # Delete all conversations`,
	RunE: func(cmd *cobra.Command, args []string) error {
		beforeDateStr, _ := cmd.Flags().GetString("before")
		deleteAll, _ := cmd.Flags().GetBool("all")

		registry, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}

		var toDelete []conversation.Conversation
		var question string
		switch {
		case deleteAll:
			toDelete = registry.List()
			question = fmt.Sprintf("Are you sure you want to delete all %d conversations?", len(toDelete))
		case beforeDateStr != "":
			beforeDate, err := parseDate(beforeDateStr)
			if err != nil {
				return fmt.Errorf("parsing date: %w", err)
			}
			for _, conv := range registry.List() {
				if conv.CreatedAt.Before(beforeDate) {
					toDelete = append(toDelete, conv)
				}
			}
			question = fmt.Sprintf("Are you sure you want to delete %d conversations created before %s?",
				len(toDelete), beforeDate.Format("2006-01-02"))
		default:
			toDelete = registry.BucketByAge(time.Now())[conversation.BucketExpiring]
			question = fmt.Sprintf("Are you sure you want to delete %d conversations older than 45 days?", len(toDelete))
		}

		if len(toDelete) == 0 {
			fmt.Println("No conversations to delete.")
			return nil
		}
		if !confirm("%s", question) {
			fmt.Println("Deletion cancelled.")
			return nil
		}

		deleted := 0
		failed := 0
		for _, conv := range toDelete {
			if err := registry.Delete(cmd.Context(), conv.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to delete conversation %s: %v\n", conv.GetShortID(), err)
				failed++
			} else {
				deleted++
			}
		}

		fmt.Printf("Successfully deleted %d conversations", deleted)
		if failed > 0 {
			fmt.Printf(" (%d failed)", failed)
		}
		fmt.Println(".")
		return nil
	},
}

// parseDate parses a date string in various formats and returns a time.Time
// Supported formats: YYYY-MM-DD, YYYY-MM, YYYY
func parseDate(dateStr string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", dateStr); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01", dateStr); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006", dateStr); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD, YYYY-MM, or YYYY)", dateStr)
}

var conversationsStartCmd = &cobra.Command{
	Use:   "start [id]",
	Short: "Start an interactive chat",
	Long: `Start an interactive chat with continuous conversation.

Without an ID the most recent conversation is continued.
The ID can be a short ID (minimum 4 characters), full UUID, or "latest" for the most recent conversation.

Examples:
  eclesia conversations start            # Continue the most recent conversation
  eclesia conversations start 550e8400   # Continue conversation 550e8400`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		mgr, err := newManager(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		if len(args) > 0 {
			id, err := mgr.Registry().Resolve(args[0])
			if err != nil {
				return fmt.Errorf("finding conversation: %w", err)
			}
			if err := mgr.Registry().SetActive(id); err != nil {
				return err
			}
		}

		if err := runInteractiveMode(cmd.Context(), mgr); err != nil {
			return fmt.Errorf("interactive mode: %w", err)
		}
		return nil
	},
}

func openRegistry(ctx context.Context) (*conversation.Registry, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return loadRegistry(ctx, cfg)
}

func printMessages(w io.Writer, msgs []eclesia.Message) {
	for i, msg := range msgs {
		roleLabel := "Você"
		if msg.Role == eclesia.RoleAssistant {
			roleLabel = "EclesIA"
		}
		fmt.Fprintf(w, "\n[%d] %s (%s):\n%s\n",
			i+1,
			roleLabel,
			msg.Timestamp.Local().Format("2006-01-02 15:04:05"),
			msg.Content,
		)
	}
}

var replCompleter = readline.NewPrefixCompleter(
	readline.PcItem("/help"),
	readline.PcItem("/info"),
	readline.PcItem("/new"),
	readline.PcItem("/list"),
	readline.PcItem("/switch"),
	readline.PcItem("/rename"),
	readline.PcItem("/delete"),
	readline.PcItem("/clear"),
	readline.PcItem("/exit"),
)

// runInteractiveMode starts an interactive chat on the manager's active
// conversation
func runInteractiveMode(ctx context.Context, mgr *session.Manager) error {
	var historyFile string
	if dir, err := config.DataDir(); err == nil {
		historyFile = filepath.Join(dir, "history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "Você> ",
		HistoryFile:     historyFile,
		AutoComplete:    replCompleter,
		InterruptPrompt: "^C",
		EOFPrompt:       "/exit",
		Stderr:          os.Stderr,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	registry := mgr.Registry()
	conv, _ := registry.Get(registry.Active())
	fmt.Fprintf(os.Stderr, "\n=== EclesIA [%s] ===\n", conv.GetShortID())
	fmt.Fprintf(os.Stderr, "Conversation: %s\n", conv.GetDisplayName())
	fmt.Fprintf(os.Stderr, "Type '/help' for commands, '/exit' or 'Ctrl+D' to quit\n")
	fmt.Fprintf(os.Stderr, "===================================\n\n")
	if conv.MessageCount() == 0 {
		fmt.Printf("EclesIA> %s\n\n", eclesia.WelcomeMessage)
	}

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if line == "" {
				fmt.Fprintln(os.Stderr, "Goodbye!")
				return nil
			}
			continue
		}
		if err == io.EOF {
			fmt.Fprintln(os.Stderr, "\nGoodbye!")
			return nil
		}
		if err != nil {
			return fmt.Errorf("input error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if handleSpecialCommand(ctx, input, mgr) {
				continue
			}
			return nil
		}

		fmt.Println()
		if _, err := streamReply(ctx, mgr, registry.Active(), input, os.Stdout, "EclesIA> ", true); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		fmt.Println()
	}
}

// showSpinner displays a spinner animation while waiting for response
func showSpinner(done chan bool) {
	spinners := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	i := 0
	for {
		select {
		case <-done:
			// Clear the spinner line
			fmt.Fprint(os.Stderr, "\r\033[K")
			return
		default:
			fmt.Fprintf(os.Stderr, "\r%s Aguardando resposta...", spinners[i])
			i = (i + 1) % len(spinners)
			time.Sleep(80 * time.Millisecond)
		}
	}
}

// handleSpecialCommand processes special commands in interactive mode
// Returns true to continue the loop, false to exit
func handleSpecialCommand(ctx context.Context, input string, mgr *session.Manager) bool {
	fields := strings.Fields(input)
	command := strings.ToLower(fields[0])
	arg := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))
	registry := mgr.Registry()

	switch command {
	case "/help", "/h":
		fmt.Fprintln(os.Stderr, "\nAvailable commands:")
		fmt.Fprintln(os.Stderr, "  /help, /h         - Show this help message")
		fmt.Fprintln(os.Stderr, "  /info, /i         - Show conversation information")
		fmt.Fprintln(os.Stderr, "  /new, /n          - Start a new conversation")
		fmt.Fprintln(os.Stderr, "  /list, /l         - List conversations")
		fmt.Fprintln(os.Stderr, "  /switch <id>      - Switch to another conversation")
		fmt.Fprintln(os.Stderr, "  /rename [name]    - Rename the current conversation")
		fmt.Fprintln(os.Stderr, "  /delete           - Delete the current conversation")
		fmt.Fprintln(os.Stderr, "  /clear, /c        - Clear screen (Unix/Linux only)")
		fmt.Fprintln(os.Stderr, "  /exit, /quit      - Exit interactive mode")
		fmt.Fprintln(os.Stderr, "  Ctrl+D            - Exit interactive mode")
		fmt.Fprintln(os.Stderr, "")
		return true

	case "/info", "/i":
		conv, _ := registry.Get(registry.Active())
		fmt.Fprintln(os.Stderr, "\nConversation Information:")
		fmt.Fprintf(os.Stderr, "  ID: %s\n", conv.GetShortID())
		fmt.Fprintf(os.Stderr, "  Full ID: %s\n", conv.ID)
		fmt.Fprintf(os.Stderr, "  Name: %s\n", conv.GetDisplayName())
		fmt.Fprintf(os.Stderr, "  Messages: %d\n", conv.MessageCount())
		fmt.Fprintf(os.Stderr, "  Created: %s\n", conv.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintln(os.Stderr, "")
		return true

	case "/new", "/n":
		id, err := registry.Create(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return true
		}
		conv, _ := registry.Get(id)
		fmt.Fprintf(os.Stderr, "Conversation created: %s\n\n", conv.GetShortID())
		fmt.Printf("EclesIA> %s\n\n", eclesia.WelcomeMessage)
		return true

	case "/list", "/l":
		active := registry.Active()
		fmt.Fprintln(os.Stderr)
		for _, conv := range registry.List() {
			marker := " "
			if conv.ID == active {
				marker = "*"
			}
			fmt.Fprintf(os.Stderr, "%s %s  %s\n", marker, conv.GetShortID(), conv.GetDisplayName())
		}
		fmt.Fprintln(os.Stderr)
		return true

	case "/switch", "/s":
		id, err := registry.Resolve(arg)
		if err == nil {
			err = registry.SetActive(id)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return true
		}
		conv, _ := registry.Get(id)
		fmt.Fprintf(os.Stderr, "Switched to %s (%s)\n", conv.GetShortID(), conv.GetDisplayName())
		printMessages(os.Stdout, conv.Messages)
		fmt.Println()
		return true

	case "/rename":
		id := registry.Active()
		if err := registry.Rename(ctx, id, arg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		conv, _ := registry.Get(id)
		fmt.Fprintf(os.Stderr, "Conversation renamed to \"%s\".\n", conv.GetDisplayName())
		return true

	case "/delete":
		id := registry.Active()
		if err := mgr.Delete(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return true
		}
		conv, _ := registry.Get(registry.Active())
		fmt.Fprintf(os.Stderr, "Conversation deleted. Now in %s (%s)\n", conv.GetShortID(), conv.GetDisplayName())
		return true

	case "/clear", "/c":
		fmt.Print("\033[H\033[2J")
		return true

	case "/exit", "/quit", "/q":
		fmt.Fprintln(os.Stderr, "Goodbye!")
		return false

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s (type '/help' for available commands)\n", command)
		return true
	}
}

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsNewCmd)
	conversationsCmd.AddCommand(conversationsRenameCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	conversationsCmd.AddCommand(conversationsClearCmd)
	conversationsCmd.AddCommand(conversationsStartCmd)

	conversationsClearCmd.Flags().String("before", "", "Delete only conversations created before this date (format: YYYY-MM-DD, YYYY-MM, or YYYY)")
	conversationsClearCmd.Flags().Bool("all", false, "Delete all conversations")
}
