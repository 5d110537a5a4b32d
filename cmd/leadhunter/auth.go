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

	"leadhunter/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored credentials",
	Long: `Manage stored credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only fallback)

Never share your credentials or config files!`,
}

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store credentials securely",
	Long: `Store credentials securely in the system keychain or encrypted file.

You will be prompted for:
  - Account name (if not provided)
  - Search API key
  - Login email and password (optional, for session-based targets)
  - Enrichment API key (optional)`,
	Example: `  # Interactive login
  leadhunter auth login

  # Login with an account name
  leadhunter auth login work`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAuthLogin,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout [name]",
	Short: "Remove stored credentials",
	Long: `Remove stored credentials.

If no account name is provided, you will be shown a list of stored
accounts to choose from.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAuthLogout,
}

// authListCmd represents the auth list command
var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored accounts with sanitized credential information.`,
	Run:   runAuthList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authListCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize credential manager: %v\n", err)
		os.Exit(1)
	}

	reader := bufio.NewReader(os.Stdin)

	var name string
	if len(args) > 0 {
		name = args[0]
	}
	if name == "" {
		fmt.Print("Account name (default): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read account name: %v\n", err)
			os.Exit(1)
		}
		name = strings.TrimSpace(input)
		if name == "" {
			name = "default"
		}
	}

	// Check if account already exists
	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Account '%s' already exists. Update credentials? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Println("\nEnter your credentials (keys are hidden as you type):")
	fmt.Println()

	fmt.Print("Search API key: ")
	apiKey, err := readSecret()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read API key: %v\n", err)
		os.Exit(1)
	}

	fmt.Print("Login email (press Enter to skip): ")
	emailInput, _ := reader.ReadString('\n')
	email := strings.TrimSpace(emailInput)

	var password string
	if email != "" {
		fmt.Print("Login password: ")
		password, err = readSecret()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read password: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Print("Enrichment API key (press Enter to skip): ")
	enrichKey, err := readSecret()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read enrichment API key: %v\n", err)
		os.Exit(1)
	}

	account := &auth.Account{
		Name:         name,
		Email:        email,
		Password:     password,
		APIKey:       apiKey,
		EnrichAPIKey: enrichKey,
		LastModified: time.Now(),
	}

	fmt.Println("\nStoring credentials securely...")
	if err := manager.Store(account); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to store credentials: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Account saved: %s\n", name)
	fmt.Println("\nRun a harvest with:")
	fmt.Printf("  $ leadhunter hunt --company \"Acme Corp\"\n")
}

func runAuthLogout(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize credential manager: %v\n", err)
		os.Exit(1)
	}

	if len(args) > 0 {
		if err := manager.Delete(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to remove account: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Account removed: " + args[0])
		return
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		fmt.Println("No stored accounts found")
		return
	}

	reader := bufio.NewReader(os.Stdin)

	if len(accounts) == 1 {
		account := accounts[0]
		fmt.Printf("Remove account '%s'? (y/N): ", account.Name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
		if err := manager.Delete(account.Name); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to remove account: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Account removed: " + account.Name)
		return
	}

	fmt.Println("Select account to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Name)
	}
	fmt.Printf("  0. Cancel\n\n")

	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

	if choice < 1 || choice > len(accounts) {
		return
	}
	account := accounts[choice-1]
	if err := manager.Delete(account.Name); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to remove account: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Account removed: " + account.Name)
}

func runAuthList(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize credential manager: %v\n", err)
		os.Exit(1)
	}

	accounts, err := manager.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list accounts: %v\n", err)
		os.Exit(1)
	}

	if len(accounts) == 0 {
		fmt.Println("No stored accounts. Use 'leadhunter auth login' to add one.")
		return
	}

	fmt.Println("Stored accounts:")
	fmt.Println()
	for i, account := range accounts {
		fmt.Printf("%d. Name: %s\n", i+1, account.Name)
		if account.Email != "" {
			fmt.Printf("   Email: %s\n", account.Email)
		}
		fmt.Printf("   API key: %s\n", maskSecret(account.APIKey))
		if account.EnrichAPIKey != "" {
			fmt.Printf("   Enrichment API key: %s\n", maskSecret(account.EnrichAPIKey))
		}
		fmt.Printf("   Last modified: %s\n", account.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

// readSecret reads a value from stdin without echoing
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
