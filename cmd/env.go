package cmd

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/devvluca/EclesIA/internal/bible"
	"github.com/devvluca/EclesIA/internal/dify"
	"github.com/devvluca/EclesIA/internal/eclesia"
	"github.com/devvluca/EclesIA/internal/eclesia/config"
	"github.com/devvluca/EclesIA/internal/eclesia/conversation"
	"github.com/devvluca/EclesIA/internal/eclesia/session"
	"github.com/devvluca/EclesIA/internal/eclesia/store"
	"github.com/devvluca/EclesIA/internal/supabase"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// authSessionPath is where the signed-in auth session is kept.
func authSessionPath() (string, error) {
	dir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "auth.json"), nil
}

func newAuthClient(cfg *config.Config) (*supabase.Client, error) {
	url, key, err := cfg.RequireSupabase()
	if err != nil {
		return nil, err
	}
	return supabase.NewClient(url, key), nil
}

// loadAuthSession reads the saved auth session and refreshes it when the
// access token expired.
func loadAuthSession(ctx context.Context, cfg *config.Config) (*supabase.Session, error) {
	path, err := authSessionPath()
	if err != nil {
		return nil, err
	}
	sess, err := supabase.LoadSession(path)
	if err != nil {
		return nil, err
	}
	if !sess.Expired(time.Now()) || sess.RefreshToken == "" {
		return sess, nil
	}

	client, err := newAuthClient(cfg)
	if err != nil {
		return nil, err
	}
	log.Debug().Msg("Access token expired, refreshing")
	refreshed, err := client.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refreshing session: %w\n\nSign in again with: eclesia auth login", err)
	}
	if err := supabase.SaveSession(path, refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// loadIdentity returns the signed-in identity. Local store drivers fall back
// to the operating system user when nobody signed in.
func loadIdentity(ctx context.Context, cfg *config.Config) (*eclesia.Identity, error) {
	sess, err := loadAuthSession(ctx, cfg)
	if err == nil {
		return &eclesia.Identity{UserID: sess.User.ID, Email: sess.User.Email, AccessToken: sess.AccessToken}, nil
	}
	if !errors.Is(err, supabase.ErrNoSession) || cfg.StoreDriver == config.StoreSupabase {
		return nil, err
	}

	name := "local"
	if u, uerr := user.Current(); uerr == nil && u.Username != "" {
		name = u.Username
	}
	log.Debug().Str("user", name).Msg("Not signed in, using local identity")
	return &eclesia.Identity{UserID: name}, nil
}

// newStore opens the configured remote store on behalf of identity.
func newStore(cfg *config.Config, identity *eclesia.Identity) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreSupabase:
		url, key, err := cfg.RequireSupabase()
		if err != nil {
			return nil, err
		}
		client := supabase.NewClient(url, key)
		if identity != nil && identity.AccessToken != "" {
			client = client.WithToken(identity.AccessToken)
		}
		return store.NewSupabase(client), nil
	case config.StoreSQLite:
		dsn := cfg.StoreDSN
		if fi, err := os.Stat(dsn); err == nil && fi.IsDir() {
			dsn = filepath.Join(dsn, "eclesia.db")
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		return store.OpenSQL(cfg.StoreDriver, dsn)
	case config.StoreMySQL:
		return store.OpenSQL(cfg.StoreDriver, cfg.StoreDSN)
	case config.StoreFile:
		return store.NewFile(cfg.StoreDSN), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.StoreDriver)
	}
}

// newServiceStore opens the store with elevated privileges, for reading
// every push subscription.
func newServiceStore(cfg *config.Config) (store.SubscriptionStore, error) {
	if cfg.StoreDriver != config.StoreSupabase {
		return newStore(cfg, nil)
	}
	url, _, err := cfg.RequireSupabase()
	if err != nil {
		return nil, err
	}
	if cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("supabase service key is not configured. Set it in config file (supabase_service_key) or environment variable (ECLESIA_SUPABASE_SERVICE_KEY)")
	}
	return store.NewSupabase(supabase.NewClient(url, cfg.SupabaseServiceKey)), nil
}

// newProvider creates the chat provider from the configuration
func newProvider(cfg *config.Config) (eclesia.ChatProvider, error) {
	url, token, err := cfg.RequireChatAPI()
	if err != nil {
		return nil, err
	}
	return dify.NewClient(url, token), nil
}

func newBibleClient(cfg *config.Config) (*bible.Client, error) {
	url, token, err := cfg.RequireBibleAPI()
	if err != nil {
		return nil, err
	}
	return bible.NewClient(url, token, bible.WithRatePerMinute(cfg.BibleRatePerMinute)), nil
}

// newManager wires identity, store, registry and provider, and loads the
// signed-in user's conversations.
func newManager(ctx context.Context, cfg *config.Config) (*session.Manager, error) {
	identity, err := loadIdentity(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st, err := newStore(cfg, identity)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	registry := conversation.NewRegistry(st, identity.UserID)
	if err := registry.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading conversations: %w", err)
	}
	return session.NewManager(registry, provider, st, identity), nil
}

// loadRegistry is newManager without the chat provider, for commands that
// only manage conversations.
func loadRegistry(ctx context.Context, cfg *config.Config) (*conversation.Registry, error) {
	identity, err := loadIdentity(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st, err := newStore(cfg, identity)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	registry := conversation.NewRegistry(st, identity.UserID)
	if err := registry.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading conversations: %w", err)
	}
	return registry, nil
}

// confirm asks a [y/N] question on stdout.
func confirm(format string, args ...any) bool {
	fmt.Printf(format+" [y/N]: ", args...)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "Y"
}
