package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Store drivers accepted by store_driver.
const (
	StoreSupabase = "supabase"
	StoreSQLite   = "sqlite"
	StoreMySQL    = "mysql"
	StoreFile     = "file"
)

// Config holds the configuration for the EclesIA client and server
type Config struct {
	ChatAPIURL         string `toml:"chat_api_url" mapstructure:"chat_api_url"`
	ChatAPIToken       string `toml:"chat_api_token" mapstructure:"chat_api_token"`
	BibleAPIURL        string `toml:"bible_api_url" mapstructure:"bible_api_url"`
	BibleAPIToken      string `toml:"bible_api_token" mapstructure:"bible_api_token"`
	BibleVersion       string `toml:"bible_version" mapstructure:"bible_version"`
	BibleRatePerMinute int    `toml:"bible_rate_per_minute" mapstructure:"bible_rate_per_minute"` // 0 = unlimited

	StoreDriver        string `toml:"store_driver" mapstructure:"store_driver"` // supabase, sqlite, mysql or file
	StoreDSN           string `toml:"store_dsn" mapstructure:"store_dsn"`       // sqlite path, mysql DSN or file directory
	SupabaseURL        string `toml:"supabase_url" mapstructure:"supabase_url"`
	SupabaseAnonKey    string `toml:"supabase_anon_key" mapstructure:"supabase_anon_key"`
	SupabaseServiceKey string `toml:"supabase_service_key" mapstructure:"supabase_service_key"`

	VAPIDPublicKey  string `toml:"vapid_public_key" mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `toml:"vapid_private_key" mapstructure:"vapid_private_key"`
	VAPIDSubject    string `toml:"vapid_subject" mapstructure:"vapid_subject"`
	PushConcurrency int    `toml:"push_concurrency" mapstructure:"push_concurrency"`

	AppURL     string `toml:"app_url" mapstructure:"app_url"`
	ServerPort int    `toml:"server_port" mapstructure:"server_port"`
	EventsDSN  string `toml:"events_dsn" mapstructure:"events_dsn"`
	StaticDir  string `toml:"static_dir" mapstructure:"static_dir"`
	LogLevel   string `toml:"log_level" mapstructure:"log_level"`
}

// NewDefaultConfig returns a new Config with default values
func NewDefaultConfig(dataDir string) *Config {
	return &Config{
		ChatAPIURL:         "https://api.dify.ai/v1/chat-messages",
		ChatAPIToken:       "$DIFY_API_KEY",
		BibleAPIURL:        "https://www.abibliadigital.com.br/api",
		BibleAPIToken:      "$BIBLIA_API_TOKEN",
		BibleVersion:       "nvi",
		BibleRatePerMinute: 20,
		StoreDriver:        StoreSupabase,
		StoreDSN:           dataDir,
		SupabaseURL:        "$SUPABASE_URL",
		SupabaseAnonKey:    "$SUPABASE_ANON_KEY",
		SupabaseServiceKey: "$SUPABASE_SERVICE_ROLE_KEY",
		VAPIDPublicKey:     "$VAPID_PUBLIC_KEY",
		VAPIDPrivateKey:    "$VAPID_PRIVATE_KEY",
		VAPIDSubject:       "mailto:contato@eclesia.app",
		PushConcurrency:    8,
		AppURL:             "https://eclesia.vercel.app",
		ServerPort:         8080,
		EventsDSN:          "events.db",
		StaticDir:          "",
		LogLevel:           "info",
	}
}

// LoadConfig loads configuration from viper
func LoadConfig() (*Config, error) {
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %v", err)
	}

	for _, field := range []*string{
		&config.ChatAPIURL, &config.ChatAPIToken,
		&config.BibleAPIURL, &config.BibleAPIToken,
		&config.SupabaseURL, &config.SupabaseAnonKey, &config.SupabaseServiceKey,
		&config.VAPIDPublicKey, &config.VAPIDPrivateKey,
		&config.StoreDSN,
	} {
		*field = expandEnvVar(*field)
	}

	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	switch config.StoreDriver {
	case StoreSupabase, StoreSQLite, StoreMySQL, StoreFile:
	case "":
		config.StoreDriver = StoreSupabase
	default:
		return nil, fmt.Errorf("unsupported store driver: %s (expected supabase, sqlite, mysql or file)", config.StoreDriver)
	}

	if config.StoreDriver == StoreSQLite || config.StoreDriver == StoreFile {
		if config.StoreDSN != "" {
			absPath, err := ResolvePath(config.StoreDSN)
			if err != nil {
				return nil, fmt.Errorf("error resolving store path '%s': %v", config.StoreDSN, err)
			}
			config.StoreDSN = absPath
		}
	}

	return config, nil
}
