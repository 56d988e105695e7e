package prompt

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"propsync/cmd/propctl/internal/config"
)

// FillMissing prompts the user for missing configuration values
func FillMissing(cfg *config.Config) error {
	reader := bufio.NewReader(os.Stdin)

	if cfg.Addr == "" {
		addr, err := promptForAddr(reader)
		if err != nil {
			return fmt.Errorf("failed to get daemon address: %w", err)
		}
		cfg.Addr = addr
	}

	if cfg.APIKey == "" {
		key, err := promptForAPIKey(reader)
		if err != nil {
			return fmt.Errorf("failed to get API key: %w", err)
		}
		cfg.APIKey = key
	}

	return nil
}

// promptForAPIKey prompts for the daemon API key with masked input
func promptForAPIKey(reader *bufio.Reader) (string, error) {
	for {
		fmt.Print("Enter API key (leave empty for none): ")

		// Use term.ReadPassword for masked input
		keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			// Fallback to regular input if term.ReadPassword fails
			line, err := reader.ReadString('\n')
			if err != nil {
				return "", err
			}
			keyBytes = []byte(strings.TrimSpace(line))
		} else {
			// Print newline after password input
			fmt.Println()
		}

		key := strings.TrimSpace(string(keyBytes))
		if key == "" {
			return "", nil
		}

		// Confirm the key
		fmt.Print("Confirm API key: ")
		confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			line, err := reader.ReadString('\n')
			if err != nil {
				return "", err
			}
			confirmBytes = []byte(strings.TrimSpace(line))
		} else {
			fmt.Println()
		}

		confirm := strings.TrimSpace(string(confirmBytes))
		if key != confirm {
			fmt.Println("API keys do not match. Please try again.")
			continue
		}

		return key, nil
	}
}

// promptForAddr prompts for the daemon address
func promptForAddr(reader *bufio.Reader) (string, error) {
	for {
		fmt.Print("Daemon address [http://localhost:8080]: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}

		addr := strings.TrimSpace(line)
		if addr == "" {
			return "http://localhost:8080", nil
		}

		if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
			fmt.Println("Address must start with http:// or https://.")
			continue
		}

		return addr, nil
	}
}

// MaskKey masks an API key for display
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "***" + key[len(key)-4:]
}

// Confirm prompts for a yes/no confirmation
func Confirm(message string) bool {
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Printf("%s [y/N]: ", message)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}

		response := strings.TrimSpace(strings.ToLower(line))
		switch response {
		case "y", "yes":
			return true
		case "n", "no", "":
			return false
		default:
			fmt.Println("Please enter 'y' or 'n'.")
		}
	}
}
