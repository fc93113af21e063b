// ABOUTME: Interactive verifier for Monarch Money credentials
// ABOUTME: Performs a live login plus accounts probe and prints environment guidance

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/2389/monarch-gateway/internal/auth"
	"github.com/2389/monarch-gateway/internal/monarch"
)

const banner = `
    ╭──────────────────────────────────╮
    │                                  │
    │   monarch-login                  │
    │   Monarch Money login verifier   │
    │                                  │
    ╰──────────────────────────────────╯
`

// getConfigPath returns the path to the login config file.
// Priority: MONARCH_LOGIN_CONFIG env var > XDG_CONFIG_HOME/monarch-gateway/login.toml > ~/.config/monarch-gateway/login.toml
func getConfigPath() string {
	if envPath := os.Getenv("MONARCH_LOGIN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "login.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "monarch-gateway", "login.toml")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := LoadOrDefault(getConfigPath())
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)

	email := cfg.Login.Email
	if email == "" {
		email = promptLine(reader, "Monarch Money email")
	} else {
		fmt.Printf("Email: %s\n", email)
	}
	if email == "" {
		return errors.New("an email is required")
	}

	password, err := promptPassword(reader, "Password")
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if password == "" {
		return errors.New("a password is required")
	}

	creds := &auth.Credentials{
		Email:     email,
		Password:  password,
		MFASecret: cfg.Login.MFASecret,
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	fmt.Println()
	fmt.Printf("Logging in to %s ...\n", cfg.Upstream.BaseURL)

	client := newClient(cfg, creds)
	err = client.Login(ctx)
	if errors.Is(err, monarch.ErrMFARequired) {
		yellow.Println("  ! This account requires multi-factor authentication.")
		entry := promptLine(reader, "MFA code or TOTP secret key")
		if entry == "" {
			return errors.New("an MFA code is required for this account")
		}
		if isMFASeed(entry) {
			creds.MFASecret = entry
		} else {
			creds.MFACode = entry
		}
		client = newClient(cfg, creds)
		err = client.Login(ctx)
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	green.Println("  ✓ Login succeeded")

	// A successful login proves the credentials; fetching accounts proves
	// the session token actually works for queries.
	accounts, err := client.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("session probe failed: %w", err)
	}
	green.Printf("  ✓ Session verified: %s\n", accountSummary(accounts))

	fmt.Println()
	fmt.Println("Environment for the gateway (fallback credentials):")
	fmt.Printf("  export MONARCH_EMAIL=%q\n", email)
	fmt.Println("  export MONARCH_PASSWORD='<your password>'")
	switch {
	case creds.MFASecret != "":
		fmt.Println("  export MONARCH_MFA_SECRET='<your TOTP secret key>'")
	case creds.MFACode != "":
		yellow.Println("  ! A one-time code expires in seconds. For unattended use,")
		yellow.Println("    set MONARCH_MFA_SECRET to the TOTP secret key instead.")
	}
	fmt.Println()
	gray.Println("Nothing was written to disk. The gateway logs in on demand.")

	return nil
}

func newClient(cfg *Config, creds *auth.Credentials) *monarch.Client {
	return monarch.New(monarch.Config{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, creds)
}

// isMFASeed distinguishes a TOTP secret key from a one-time code: seeds are
// long base32 strings, codes are a handful of digits.
func isMFASeed(s string) bool {
	s = strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	if len(s) < 16 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '2' || r > '7') {
			return false
		}
	}
	return true
}

func accountSummary(raw json.RawMessage) string {
	var accounts []json.RawMessage
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return "accounts query answered"
	}
	if len(accounts) == 1 {
		return "1 account visible"
	}
	return fmt.Sprintf("%d accounts visible", len(accounts))
}

func promptLine(reader *bufio.Reader, question string) string {
	fmt.Printf("%s: ", question)
	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return ""
	}
	return strings.TrimSpace(input)
}

// promptPassword reads a line without echoing when stdin is a terminal.
// Piped input still works, it just is not hidden.
func promptPassword(reader *bufio.Reader, question string) (string, error) {
	fmt.Printf("%s: ", question)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			return "", err
		}
		return strings.TrimSpace(input), nil
	}

	raw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
