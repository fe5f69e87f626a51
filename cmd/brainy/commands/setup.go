package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brainybot/brainy/pkg/brainy/assistant"
)

// newSetupCmd creates the `brainy setup` command for interactive
// configuration.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Starts an interactive wizard to create your initial config.yaml.
Asks for the assistant name, operating mode, authorized phone number, and
API key. The API key is stored in the OS keyring, never in plaintext.

Examples:
  brainy setup`,
		RunE: runSetup,
	}
}

func runSetup(_ *cobra.Command, _ []string) error {
	reader := bufio.NewReader(os.Stdin)
	cfg := assistant.DefaultConfig()

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║           Brainy — Setup Wizard              ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()

	// ── Step 1: Assistant name ──
	fmt.Printf("1. Assistant name [%s]: ", cfg.Name)
	if name := readLine(reader); name != "" {
		cfg.Name = name
	}

	// ── Step 2: Operating mode ──
	fmt.Println()
	fmt.Println("   Operating mode:")
	fmt.Println("   two-number    — a dedicated bot number; only the authorized")
	fmt.Println("                   counterparty number may command it")
	fmt.Println("   single-number — the assistant runs on your own number and")
	fmt.Println("                   responds to messages you send yourself")
	fmt.Println()
	fmt.Printf("2. Mode [%s]: ", cfg.Mode)
	if mode := readLine(reader); mode != "" {
		if _, err := assistant.ParseMode(mode); err != nil {
			fmt.Printf("   [!] Invalid mode, keeping '%s'.\n", cfg.Mode)
		} else {
			cfg.Mode = mode
		}
	}

	// ── Step 3: Authorized phone number (two-number mode) ──
	if cfg.Mode == string(assistant.ModeDualIdentity) {
		fmt.Println()
		fmt.Println("   The authorized number is the only sender the assistant obeys.")
		fmt.Println("   Use the country code, without +, spaces or dashes.")
		fmt.Println("   Example: 5511999998888")
		fmt.Println()
		for {
			fmt.Print("3. Authorized phone number: ")
			number := normalizePhone(readLine(reader))
			if len(number) < 10 {
				fmt.Println("   [!] Number seems too short. Include the country code.")
				continue
			}
			cfg.AuthorizedNumber = number
			break
		}
	}

	// ── Step 4: Timezone ──
	fmt.Println()
	fmt.Printf("4. Timezone for the daily digest [%s]: ", cfg.Timezone)
	if tz := readLine(reader); tz != "" {
		cfg.Timezone = tz
	}

	// ── Step 5: API key ──
	fmt.Println()
	fmt.Println("   Your Gemini API key will be stored in the OS keyring.")
	fmt.Println()

	apiKey, err := assistant.ReadSecret("5. API key (hidden input): ")
	if err != nil {
		// Fallback to visible input if terminal password reading fails.
		fmt.Print("5. API key (or press Enter to skip): ")
		apiKey = readLine(reader)
	}

	if apiKey != "" {
		if err := assistant.StoreKeyring("api_key", apiKey); err != nil {
			fmt.Println("   [!] Could not store the key in the OS keyring.")
			fmt.Println("   Set the GOOGLE_API_KEY environment variable instead.")
		} else {
			fmt.Println("   Stored in OS keyring.")
		}
	} else {
		fmt.Println("   Skipped. Set the GOOGLE_API_KEY environment variable before serving.")
	}

	// config.yaml never contains the real key.
	cfg.API.APIKey = "${GOOGLE_API_KEY}"

	// ── Write config ──
	path := "config.yaml"
	if err := assistant.SaveConfigToFile(cfg, path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Println()
	fmt.Printf("Setup complete! Config written to %s\n", path)
	fmt.Println("Start the assistant with: brainy serve")
	fmt.Println("On first run, scan the QR code with WhatsApp to pair.")
	return nil
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// normalizePhone removes common phone number formatting characters.
func normalizePhone(phone string) string {
	phone = strings.ReplaceAll(phone, "+", "")
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.ReplaceAll(phone, "-", "")
	phone = strings.ReplaceAll(phone, "(", "")
	phone = strings.ReplaceAll(phone, ")", "")
	return phone
}
