package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// expandEnvVar expands environment variable references in the given value.
// Supports both $VAR and ${VAR} syntax. Unset variables expand to "".
func expandEnvVar(value string) string {
	if !strings.HasPrefix(value, "$") {
		return value
	}

	var envVarName string
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		envVarName = value[2 : len(value)-1]
	} else {
		envVarName = strings.TrimPrefix(value, "$")
	}

	return os.Getenv(envVarName)
}

// RequireChatAPI returns the chat endpoint and token, or an error naming the
// setting that is missing.
func (c *Config) RequireChatAPI() (string, string, error) {
	if c.ChatAPIURL == "" {
		return "", "", missing("chat API URL", "chat_api_url")
	}
	if c.ChatAPIToken == "" {
		return "", "", missing("chat API token", "chat_api_token")
	}
	return c.ChatAPIURL, c.ChatAPIToken, nil
}

// RequireBibleAPI returns the scripture endpoint and token.
func (c *Config) RequireBibleAPI() (string, string, error) {
	if c.BibleAPIURL == "" {
		return "", "", missing("bible API URL", "bible_api_url")
	}
	if c.BibleAPIToken == "" {
		return "", "", missing("bible API token", "bible_api_token")
	}
	return c.BibleAPIURL, c.BibleAPIToken, nil
}

// RequireSupabase returns the project URL and anon key.
func (c *Config) RequireSupabase() (string, string, error) {
	if c.SupabaseURL == "" {
		return "", "", missing("supabase URL", "supabase_url")
	}
	if c.SupabaseAnonKey == "" {
		return "", "", missing("supabase anon key", "supabase_anon_key")
	}
	return c.SupabaseURL, c.SupabaseAnonKey, nil
}

// RequireVAPID returns the VAPID key pair.
func (c *Config) RequireVAPID() (string, string, error) {
	if c.VAPIDPublicKey == "" {
		return "", "", missing("VAPID public key", "vapid_public_key")
	}
	if c.VAPIDPrivateKey == "" {
		return "", "", missing("VAPID private key", "vapid_private_key")
	}
	return c.VAPIDPublicKey, c.VAPIDPrivateKey, nil
}

func missing(what, key string) error {
	return fmt.Errorf("%s is not configured. Set it in config file (%s) or environment variable (ECLESIA_%s)", what, key, strings.ToUpper(key))
}

// ResolvePath converts a relative path to absolute path if needed.
// Relative paths are resolved against the directory of the config file in use.
func ResolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("error getting current working directory: %v", err)
		}
		return filepath.Join(cwd, path), nil
	}

	configDir := filepath.Dir(configFile)
	if !filepath.IsAbs(configDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("error getting current working directory: %v", err)
		}
		configDir = filepath.Join(cwd, configDir)
	}

	return filepath.Join(configDir, path), nil
}

// DataDir returns the directory where local state (auth session, file
// store) lives: next to the config file in use, or $HOME/.config/eclesia.
func DataDir() (string, error) {
	if configFile := viper.ConfigFileUsed(); configFile != "" {
		dir := filepath.Dir(configFile)
		if !filepath.IsAbs(dir) {
			cwd, err := os.Getwd()
			if err != nil {
				return "", fmt.Errorf("failed to get current working directory: %w", err)
			}
			dir = filepath.Join(cwd, dir)
		}
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "eclesia"), nil
}
