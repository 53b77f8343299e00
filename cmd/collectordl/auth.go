package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"collectordl/pkg/auth"
	"collectordl/pkg/ui"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage mirror API tokens",
	Long: `Manage optional API tokens for download mirrors.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only)

A stored token is sent as a bearer token to its mirror host only.`,
}

// setCmd represents the auth set command
var setCmd = &cobra.Command{
	Use:   "set <mirror>",
	Short: "Store a token for a mirror",
	Long: `Store an API token for a mirror host. The mirror may be given as a
host name or as a URL; only the host is kept.

You will be prompted for the token; input is hidden.`,
	Example: `  collectordl auth set catboy.best
  collectordl auth set https://api.nerinyan.moe/d/%d`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthSet,
}

// removeCmd represents the auth remove command
var removeCmd = &cobra.Command{
	Use:     "remove <mirror>",
	Aliases: []string{"rm"},
	Short:   "Remove the stored token of a mirror",
	Args:    cobra.ExactArgs(1),
	RunE:    runAuthRemove,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List mirrors with a stored token",
	Long:  `List all mirrors with a stored token. Tokens are masked.`,
	Args:  cobra.NoArgs,
	RunE:  runAuthList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(setCmd)
	authCmd.AddCommand(removeCmd)
	authCmd.AddCommand(listCmd)
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	host := auth.NormalizeHost(args[0])
	if host == "" {
		return fmt.Errorf("invalid mirror %q", args[0])
	}

	auth.ShowTokenGuide(os.Stdout, host)

	// Check if a token already exists
	if existing, _ := manager.Retrieve(host); existing != nil {
		fmt.Printf("A token for %s already exists. Replace it? (y/N): ", host)
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Printf("Token for %s: ", host)
	token, err := readPassword()
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return errors.New("token is required")
	}

	if err := manager.Store(&auth.MirrorToken{Host: host, Token: token}); err != nil {
		return err
	}

	ui.PrintSuccess("Token stored for " + host)
	return nil
}

func runAuthRemove(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	host := auth.NormalizeHost(args[0])
	if err := manager.Delete(host); err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			ui.PrintWarning("No token stored for", host)
			return nil
		}
		return err
	}

	ui.PrintSuccess("Token removed for " + host)
	if env := auth.EnvVar(host); os.Getenv(env) != "" {
		ui.PrintWarning(env + " is still set in the environment")
	}
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	tokens, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list tokens: %w", err)
	}

	if len(tokens) == 0 {
		fmt.Println("No mirror tokens stored.")
		fmt.Println("\nTo add one, run:")
		fmt.Println("  collectordl auth set <mirror>")
		return nil
	}

	fmt.Println("Stored mirror tokens:")
	for _, token := range tokens {
		masked := auth.SanitizeToken(token)
		modified := "-"
		if !masked.LastModified.IsZero() {
			modified = masked.LastModified.Format("2006-01-02 15:04")
		}
		fmt.Printf("  %-28s %s  %s\n", ui.Cyan(masked.Host), masked.Token, ui.Dim(modified))
	}
	return nil
}

// readPassword reads a secret from stdin without echoing
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		password, err := term.ReadPassword(fd)
		fmt.Println() // New line after password
		if err == nil {
			return strings.TrimSpace(string(password)), nil
		}
	}

	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
