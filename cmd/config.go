package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/devvluca/EclesIA/internal/eclesia/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const configFields = "configfile, chat_api_url, chat_api_token, bible_api_url, bible_api_token, bible_version, bible_rate_per_minute, store_driver, store_dsn, supabase_url, supabase_anon_key, supabase_service_key, vapid_public_key, vapid_private_key, vapid_subject, push_concurrency, app_url, server_port, events_dsn, static_dir, log_level"

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config [field]",
	Short: "Display current configuration",
	Long: `Display the current configuration values.
This command shows all configuration values loaded from the config file and environment variables.
Tokens and keys are masked.

If a field name is specified, only that field's value is displayed.
Available fields: ` + configFields + `

Examples:
  eclesia config                  # Show all configuration
  eclesia config store_driver     # Show only the store driver
  eclesia config chat_api_token   # Show only the chat API token (masked)`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		fields := configValues(cfg)

		if len(args) > 0 {
			field := strings.ToLower(args[0])
			for _, f := range fields {
				if f.key == field {
					fmt.Println(f.value)
					return
				}
			}
			fmt.Fprintf(os.Stderr, "Unknown field: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "Available fields: %s\n", configFields)
			os.Exit(1)
		}

		for _, f := range fields {
			fmt.Printf("%s: %s\n", f.label, f.value)
		}
	},
}

type configValue struct {
	key   string
	label string
	value string
}

func configValues(cfg *config.Config) []configValue {
	return []configValue{
		{"configfile", "ConfigFile", viper.ConfigFileUsed()},
		{"chat_api_url", "ChatAPIURL", cfg.ChatAPIURL},
		{"chat_api_token", "ChatAPIToken", maskToken(cfg.ChatAPIToken)},
		{"bible_api_url", "BibleAPIURL", cfg.BibleAPIURL},
		{"bible_api_token", "BibleAPIToken", maskToken(cfg.BibleAPIToken)},
		{"bible_version", "BibleVersion", cfg.BibleVersion},
		{"bible_rate_per_minute", "BibleRatePerMinute", fmt.Sprint(cfg.BibleRatePerMinute)},
		{"store_driver", "StoreDriver", cfg.StoreDriver},
		{"store_dsn", "StoreDSN", cfg.StoreDSN},
		{"supabase_url", "SupabaseURL", cfg.SupabaseURL},
		{"supabase_anon_key", "SupabaseAnonKey", maskToken(cfg.SupabaseAnonKey)},
		{"supabase_service_key", "SupabaseServiceKey", maskToken(cfg.SupabaseServiceKey)},
		{"vapid_public_key", "VAPIDPublicKey", cfg.VAPIDPublicKey},
		{"vapid_private_key", "VAPIDPrivateKey", maskToken(cfg.VAPIDPrivateKey)},
		{"vapid_subject", "VAPIDSubject", cfg.VAPIDSubject},
		{"push_concurrency", "PushConcurrency", fmt.Sprint(cfg.PushConcurrency)},
		{"app_url", "AppURL", cfg.AppURL},
		{"server_port", "ServerPort", fmt.Sprint(cfg.ServerPort)},
		{"events_dsn", "EventsDSN", cfg.EventsDSN},
		{"static_dir", "StaticDir", cfg.StaticDir},
		{"log_level", "LogLevel", cfg.LogLevel},
	}
}

// maskToken returns a masked version of the token for security
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func init() {
	rootCmd.AddCommand(configCmd)
}
