package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"mpscraper/pkg/auth"
	"mpscraper/pkg/ui"
)

var (
	authToken  string
	authCookie string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the stored platform session",
}

var authSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a token and cookie captured from a logged-in browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(nil)
		if err != nil {
			return err
		}

		token, cookie := authToken, authCookie
		if token == "" || cookie == "" {
			auth.WriteLoginGuide(cmd.OutOrStdout())
			reader := bufio.NewReader(os.Stdin)
			if token == "" {
				if token, err = prompt(reader, "Token (or console URL): "); err != nil {
					return err
				}
			}
			if cookie == "" {
				if cookie, err = promptSecret(reader, "Cookie: "); err != nil {
					return err
				}
			}
		}

		cred := &auth.Credential{
			Profile: profile,
			Token:   auth.ParseToken(token),
			Cookie:  auth.NormalizeCookie(cookie),
		}
		if err := a.creds.Store(cred); err != nil {
			return err
		}

		ui.PrintSuccess(fmt.Sprintf("Session stored for profile %q", cred.Profile))
		if exp := a.provider.ExpiresAt(cred); !exp.IsZero() {
			ui.PrintInfo("Expires", exp.Format(time.RFC3339))
		}
		return nil
	},
}

var authShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored session with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(nil)
		if err != nil {
			return err
		}

		cred, err := a.creds.Retrieve(profile)
		if err != nil {
			return fmt.Errorf("profile %q: %w", profile, err)
		}

		masked := auth.Sanitize(cred)
		ui.PrintInfo("Profile", masked.Profile)
		ui.PrintInfo("Token", masked.Token)
		ui.PrintInfo("Cookie", masked.Cookie)
		ui.PrintInfo("Obtained", cred.ObtainedAt.Format(time.RFC3339))
		if exp := a.provider.ExpiresAt(cred); !exp.IsZero() {
			ui.PrintInfo("Expires", exp.Format(time.RFC3339))
		}

		if _, err := a.provider.GetCredential(); err != nil {
			ui.PrintWarning("Status", err)
		} else {
			ui.PrintSuccess("Status: usable")
		}
		return nil
	},
}

var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(nil)
		if err != nil {
			return err
		}
		if err := a.creds.Delete(profile); err != nil {
			return fmt.Errorf("profile %q: %w", profile, err)
		}
		ui.PrintSuccess(fmt.Sprintf("Session removed for profile %q", profile))
		return nil
	},
}

func init() {
	authSetCmd.Flags().StringVar(&authToken, "token", "", "admin console token or URL containing it")
	authSetCmd.Flags().StringVar(&authCookie, "cookie", "", "cookie header value")

	authCmd.AddCommand(authSetCmd, authShowCmd, authClearCmd)
	rootCmd.AddCommand(authCmd)
}

func prompt(r *bufio.Reader, label string) (string, error) {
	fmt.Fprint(ui.Output(), label)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads without echo when stdin is a terminal
func promptSecret(r *bufio.Reader, label string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return prompt(r, label)
	}
	fmt.Fprint(ui.Output(), label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(ui.Output())
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
