package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/devvluca/EclesIA/internal/eclesia/config"
	"github.com/devvluca/EclesIA/internal/supabase"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var authEmail string

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage your EclesIA account",
	Long: `Sign up, sign in and manage the password of your EclesIA account.

The signed-in session is saved next to the config file (auth.json) and is
used as your identity for chat and conversation commands.`,
}

var authSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Long: `Create an account with email and password.
Depending on the project settings you may need to confirm your email before signing in.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authClient()
		if err != nil {
			return err
		}
		email, err := promptEmail()
		if err != nil {
			return err
		}
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		again, err := promptPassword("Confirm password: ")
		if err != nil {
			return err
		}
		if password != again {
			return fmt.Errorf("passwords do not match")
		}

		user, err := client.SignUp(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("signing up: %w", err)
		}
		fmt.Printf("Account created for %s.\n", user.Email)
		fmt.Println("Check your inbox to confirm it, then sign in with: eclesia auth login")
		return nil
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authClient()
		if err != nil {
			return err
		}
		email, err := promptEmail()
		if err != nil {
			return err
		}
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		sess, err := client.SignInWithPassword(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("signing in: %w", err)
		}
		path, err := authSessionPath()
		if err != nil {
			return err
		}
		if err := supabase.SaveSession(path, sess); err != nil {
			return err
		}
		fmt.Printf("Signed in as %s.\n", sess.User.Email)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := authSessionPath()
		if err != nil {
			return err
		}
		if sess, err := supabase.LoadSession(path); err == nil {
			if client, err := authClient(); err == nil {
				if err := client.WithToken(sess.AccessToken).SignOut(cmd.Context()); err != nil && verbose {
					fmt.Fprintf(os.Stderr, "Warning: failed to revoke session: %v\n", err)
				}
			}
		}
		if err := supabase.DeleteSession(path); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	},
}

var authRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Send a password reset email",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authClient()
		if err != nil {
			return err
		}
		email, err := promptEmail()
		if err != nil {
			return err
		}
		if err := client.Recover(cmd.Context(), email); err != nil {
			return fmt.Errorf("requesting password reset: %w", err)
		}
		fmt.Println("Check your email for password reset instructions.")
		return nil
	},
}

var authPasswordCmd = &cobra.Command{
	Use:   "password",
	Short: "Change the password of the signed-in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		sess, err := loadAuthSession(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		client, err := newAuthClient(cfg)
		if err != nil {
			return err
		}

		password, err := promptPassword("New password: ")
		if err != nil {
			return err
		}
		again, err := promptPassword("Confirm new password: ")
		if err != nil {
			return err
		}
		if password != again {
			return fmt.Errorf("passwords do not match")
		}

		if err := client.WithToken(sess.AccessToken).UpdatePassword(cmd.Context(), password); err != nil {
			return fmt.Errorf("updating password: %w", err)
		}
		fmt.Println("Password updated.")
		return nil
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity used for conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		identity, err := loadIdentity(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		fmt.Printf("User: %s\n", identity.UserID)
		if identity.Email != "" {
			fmt.Printf("Email: %s\n", identity.Email)
		}
		fmt.Printf("Store: %s\n", cfg.StoreDriver)
		return nil
	},
}

func authClient() (*supabase.Client, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newAuthClient(cfg)
}

var stdinReader = bufio.NewReader(os.Stdin)

func promptEmail() (string, error) {
	if authEmail != "" {
		return authEmail, nil
	}
	fmt.Fprint(os.Stderr, "Email: ")
	line, err := stdinReader.ReadString('\n')
	email := strings.TrimSpace(line)
	if email == "" {
		if err != nil {
			return "", fmt.Errorf("reading email: %w", err)
		}
		return "", fmt.Errorf("email is required")
	}
	return email, nil
}

// promptPassword reads a password without echo when stdin is a terminal.
func promptPassword(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		if len(b) == 0 {
			return "", fmt.Errorf("password is required")
		}
		return string(b), nil
	}

	line, err := stdinReader.ReadString('\n')
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return "", fmt.Errorf("password is required")
	}
	return password, nil
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSignupCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authRecoverCmd)
	authCmd.AddCommand(authPasswordCmd)
	authCmd.AddCommand(authWhoamiCmd)

	for _, c := range []*cobra.Command{authSignupCmd, authLoginCmd, authRecoverCmd} {
		c.Flags().StringVarP(&authEmail, "email", "e", "", "Account email (prompted when omitted)")
	}
}
