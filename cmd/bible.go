package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/devvluca/EclesIA/internal/bible"
	"github.com/devvluca/EclesIA/internal/eclesia"
	"github.com/devvluca/EclesIA/internal/eclesia/config"
	"github.com/devvluca/EclesIA/internal/eclesia/session"
	"github.com/spf13/cobra"
)

var (
	bibleVersion string
	verseRange   string
)

// bibleCmd represents the bible command
var bibleCmd = &cobra.Command{
	Use:   "bible",
	Short: "Read the scriptures and ask about a passage",
	Long: `Read the scriptures from the configured Bible API and ask EclesIA about a passage.

Books can be named in Portuguese or English, with or without accents, or by
abbreviation: "Gênesis", "genesis" and "gn" all find Genesis.`,
}

var bibleBooksCmd = &cobra.Command{
	Use:   "books",
	Short: "List the books of the Bible",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := bibleClient()
		if err != nil {
			return err
		}
		books, err := client.Books(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing books: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ABBREV\tNAME\tTESTAMENT\tCHAPTERS")
		fmt.Fprintln(w, "------\t----\t---------\t--------")
		for _, b := range books {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", b.Abbrev.PT, b.Name, b.Testament, b.Chapters)
		}
		w.Flush()
		return nil
	},
}

var bibleReadCmd = &cobra.Command{
	Use:   "read <book> <chapter>",
	Short: "Read a chapter",
	Long: `Read a chapter, one numbered verse per line.

Examples:
  eclesia bible read gn 1
  eclesia bible read "Salmos" 23 --verses 1-3`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		chapter, from, to, err := fetchChapter(cmd, args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("%s %d\n\n", chapter.Book.Name, chapter.Number)
		for _, v := range chapter.Verses {
			if (from > 0 && v.Number < from) || (to > 0 && v.Number > to) {
				continue
			}
			fmt.Printf("%d %s\n", v.Number, strings.TrimSpace(v.Text))
		}
		return nil
	},
}

var bibleAskCmd = &cobra.Command{
	Use:   "ask <book> <chapter> <question>",
	Short: "Ask EclesIA about a passage",
	Long: `Ask EclesIA about a chapter or a range of verses. The answer is streamed
and is not saved in a conversation.

Examples:
  eclesia bible ask jo 3 "O que significa nascer de novo?" --verses 1-8`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		chapter, from, to, err := fetchChapter(cmd, args[0], args[1])
		if err != nil {
			return err
		}
		question := strings.Join(args[2:], " ")
		passage := chapter.Text(from, to)
		if passage == "" {
			return fmt.Errorf("no verses selected in %s %d", chapter.Book.Name, chapter.Number)
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		provider, err := newProvider(cfg)
		if err != nil {
			return err
		}

		user := "eclesia-cli"
		if identity, err := loadIdentity(cmd.Context(), cfg); err == nil {
			user = identity.UserID
		}

		stream, err := provider.StreamChat(cmd.Context(), eclesia.ChatRequest{
			Query: session.BuildPassageQuery(passage, question),
			User:  user,
		})
		if err != nil {
			return fmt.Errorf("asking about passage: %w", err)
		}
		defer stream.Close()

		for {
			fragment, err := stream.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				fmt.Println()
				return fmt.Errorf("reading answer: %w", err)
			}
			fmt.Print(fragment)
		}
		fmt.Println()
		return nil
	},
}

var bibleRandomCmd = &cobra.Command{
	Use:   "random",
	Short: "Show a random verse",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, version, err := bibleClient()
		if err != nil {
			return err
		}
		verse, err := client.RandomVerse(cmd.Context(), version)
		if err != nil {
			return fmt.Errorf("fetching verse: %w", err)
		}
		fmt.Printf("%s\n%s\n", strings.TrimSpace(verse.Text), verse.Reference())
		return nil
	},
}

func bibleClient() (*bible.Client, string, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	client, err := newBibleClient(cfg)
	if err != nil {
		return nil, "", err
	}
	version := cfg.BibleVersion
	if bibleVersion != "" {
		version = bibleVersion
	}
	return client, version, nil
}

// fetchChapter resolves the book name, fetches the chapter and parses
// --verses.
func fetchChapter(cmd *cobra.Command, bookArg, chapterArg string) (*bible.Chapter, int, int, error) {
	number, err := strconv.Atoi(chapterArg)
	if err != nil || number < 1 {
		return nil, 0, 0, fmt.Errorf("invalid chapter: %s", chapterArg)
	}
	from, to, err := parseVerseRange(verseRange)
	if err != nil {
		return nil, 0, 0, err
	}

	client, version, err := bibleClient()
	if err != nil {
		return nil, 0, 0, err
	}
	books, err := client.Books(cmd.Context())
	if err != nil {
		return nil, 0, 0, fmt.Errorf("listing books: %w", err)
	}
	book, err := bible.FindBook(books, bookArg)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("finding book: %w\n\nRun 'eclesia bible books' to see available books.", err)
	}
	if book.Chapters > 0 && number > book.Chapters {
		return nil, 0, 0, fmt.Errorf("%s has %d chapters", book.Name, book.Chapters)
	}

	chapter, err := client.Chapter(cmd.Context(), version, book.Abbrev.PT, number)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("fetching chapter: %w", err)
	}
	if chapter.Book.Name == "" {
		chapter.Book = book
	}
	return chapter, from, to, nil
}

// parseVerseRange parses "5" or "1-3". Empty selects the whole chapter.
func parseVerseRange(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}
	first, last, isRange := strings.Cut(s, "-")
	from, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || from < 1 {
		return 0, 0, fmt.Errorf("invalid verse range: %s (use N or N-M)", s)
	}
	if !isRange {
		return from, from, nil
	}
	to, err := strconv.Atoi(strings.TrimSpace(last))
	if err != nil || to < from {
		return 0, 0, fmt.Errorf("invalid verse range: %s (use N or N-M)", s)
	}
	return from, to, nil
}

func init() {
	rootCmd.AddCommand(bibleCmd)
	bibleCmd.AddCommand(bibleBooksCmd)
	bibleCmd.AddCommand(bibleReadCmd)
	bibleCmd.AddCommand(bibleAskCmd)
	bibleCmd.AddCommand(bibleRandomCmd)

	bibleCmd.PersistentFlags().StringVar(&bibleVersion, "version", "", "Bible version (default from config, e.g. nvi, acf, ra)")
	for _, c := range []*cobra.Command{bibleReadCmd, bibleAskCmd} {
		c.Flags().StringVar(&verseRange, "verses", "", "Verse or verse range, e.g. 16 or 1-3")
	}
}
