/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/devvluca/EclesIA/internal/eclesia/config"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "eclesia",
	Short: "EclesIA, the assistant of the Igreja Episcopal Carismática do Brasil",
	Long: `eclesia is a command-line client for EclesIA, the virtual assistant of the
Igreja Episcopal Carismática do Brasil.

Chat with the assistant, keep your conversations in sync with your account,
read the scriptures and ask about a passage, send push notifications to the
app's subscribers, and serve the events and calendar API.
You can configure the tool using a TOML configuration file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/eclesia/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// envKeys are the settings that can be overridden with ECLESIA_<KEY>.
var envKeys = []string{
	"chat_api_url", "chat_api_token",
	"bible_api_url", "bible_api_token", "bible_version", "bible_rate_per_minute",
	"store_driver", "store_dsn",
	"supabase_url", "supabase_anon_key", "supabase_service_key",
	"vapid_public_key", "vapid_private_key", "vapid_subject", "push_concurrency",
	"app_url", "server_port", "events_dsn", "static_dir", "log_level",
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// A .env in the working directory feeds the environment; real variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error reading .env file: %v\n", err)
	}

	viper.SetEnvPrefix("ECLESIA")
	viper.AutomaticEnv()

	home, err := os.UserHomeDir()
	cobra.CheckErr(err)
	userConfigDir := filepath.Join(home, ".config", "eclesia")

	defaultConfig := config.NewDefaultConfig(filepath.Join(userConfigDir, "data"))
	viper.SetDefault("chat_api_url", defaultConfig.ChatAPIURL)
	viper.SetDefault("chat_api_token", defaultConfig.ChatAPIToken)
	viper.SetDefault("bible_api_url", defaultConfig.BibleAPIURL)
	viper.SetDefault("bible_api_token", defaultConfig.BibleAPIToken)
	viper.SetDefault("bible_version", defaultConfig.BibleVersion)
	viper.SetDefault("bible_rate_per_minute", defaultConfig.BibleRatePerMinute)
	viper.SetDefault("store_driver", defaultConfig.StoreDriver)
	viper.SetDefault("store_dsn", defaultConfig.StoreDSN)
	viper.SetDefault("supabase_url", defaultConfig.SupabaseURL)
	viper.SetDefault("supabase_anon_key", defaultConfig.SupabaseAnonKey)
	viper.SetDefault("supabase_service_key", defaultConfig.SupabaseServiceKey)
	viper.SetDefault("vapid_public_key", defaultConfig.VAPIDPublicKey)
	viper.SetDefault("vapid_private_key", defaultConfig.VAPIDPrivateKey)
	viper.SetDefault("vapid_subject", defaultConfig.VAPIDSubject)
	viper.SetDefault("push_concurrency", defaultConfig.PushConcurrency)
	viper.SetDefault("app_url", defaultConfig.AppURL)
	viper.SetDefault("server_port", defaultConfig.ServerPort)
	viper.SetDefault("events_dsn", defaultConfig.EventsDSN)
	viper.SetDefault("static_dir", defaultConfig.StaticDir)
	viper.SetDefault("log_level", defaultConfig.LogLevel)

	for _, key := range envKeys {
		_ = viper.BindEnv(key, "ECLESIA_"+strings.ToUpper(key))
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	} else {
		// Load system-wide config first (lower priority)
		for _, path := range []string{"/etc/eclesia", "/usr/local/etc/eclesia"} {
			viper.AddConfigPath(path)
		}
		viper.SetConfigType("toml")
		viper.SetConfigName("config")

		systemConfigLoaded := false
		if err := viper.ReadInConfig(); err == nil {
			systemConfigLoaded = true
		}

		// Load user config (higher priority) - merge with system config
		userConfigFile := filepath.Join(userConfigDir, "config.toml")
		if systemConfigLoaded {
			if _, err := os.Stat(userConfigFile); err == nil {
				viper.SetConfigFile(userConfigFile)
				if err := viper.MergeInConfig(); err != nil {
					fmt.Fprintf(os.Stderr, "Error merging user config file: %v\n", err)
				}
			}
		} else {
			viper.AddConfigPath(userConfigDir)
			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
				}
			}
		}
	}

	setupLogging(viper.GetString("log_level"))
	log.Debug().Str("config", viper.ConfigFileUsed()).Msg("Configuration loaded")
}

// setupLogging writes human-readable logs to stderr. --verbose forces debug.
func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
