package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"mediarelay/internal/compose"
	"mediarelay/internal/config"
	"mediarelay/internal/provider"
)

const doctorTimeout = 10 * time.Second

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your mediarelay setup",
		Long: `Verifies that the configuration, message templates, AI provider and
listening ports are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfgPath := resolveConfigPath()
			fmt.Fprintf(out, "mediarelay doctor %s\n", version)
			fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed, failed, warned := 0, 0, 0

			// 1. Config file
			if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
				printWarn(out, "Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
				warned++
			} else {
				printPass(out, "Config file", cfgPath)
				passed++
			}

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail(out, "Config validation", err.Error())
				failed++
				fmt.Fprintf(out, "\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass(out, "Config validation", "valid")
			passed++

			// 3. Templates
			if _, err := compose.LoadCatalog(cfg.Compose.TemplatesFile, logger); err != nil {
				printFail(out, "Templates", err.Error())
				failed++
			} else if cfg.Compose.TemplatesFile != "" {
				printPass(out, "Templates", cfg.Compose.TemplatesFile)
				passed++
			} else {
				printPass(out, "Templates", "embedded")
				passed++
			}

			// 4. AI provider
			if cfg.AI.APIKey == "" {
				printWarn(out, "OPENAI_API_KEY", "not set; AI calls will fail")
				warned++
			} else {
				ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
				ai := provider.NewSet(cfg.AI, logger)
				if err := ai.Chat.Healthy(ctx); err != nil {
					printFail(out, "AI provider", err.Error())
					failed++
				} else {
					printPass(out, "AI provider", cfg.AI.APIBase)
					passed++
				}
				cancel()
			}

			// 5. Ports
			if err := checkPort(cfg.Server.Addr); err != nil {
				printWarn(out, "Server addr", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr, err))
				warned++
			} else {
				printPass(out, "Server addr", cfg.Server.Addr+" available")
				passed++
			}
			if cfg.Metrics.Enabled {
				if err := checkPort(cfg.Metrics.Addr); err != nil {
					printWarn(out, "Metrics addr", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
					warned++
				} else {
					printPass(out, "Metrics addr", cfg.Metrics.Addr+" available")
					passed++
				}
			}

			// 6. Telegram
			if cfg.Channels.Telegram.Enabled {
				if bot, err := tgbotapi.NewBotAPI(cfg.Channels.Telegram.Token); err != nil {
					printFail(out, "Telegram", err.Error())
					failed++
				} else {
					printPass(out, "Telegram", "@"+bot.Self.UserName)
					passed++
				}
			}

			fmt.Fprintf(out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Fprintf(out, "\nPlease fix the failed checks before running mediarelay.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Fprintf(out, "\nmediarelay should work but consider fixing the warnings.\n")
			} else {
				fmt.Fprintf(out, "\nAll checks passed! mediarelay is ready to run.\n")
			}
			return nil
		},
	}
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

func printPass(w io.Writer, check, detail string) {
	fmt.Fprintf(w, "  [PASS] %-20s %s\n", check, detail)
}

func printFail(w io.Writer, check, detail string) {
	fmt.Fprintf(w, "  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(w io.Writer, check, detail string) {
	fmt.Fprintf(w, "  [WARN] %-20s %s\n", check, detail)
}
