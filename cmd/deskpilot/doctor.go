package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"deskpilot/internal/config"
	"deskpilot/internal/script"
	"deskpilot/internal/store"

	"github.com/spf13/cobra"
)

// checkResult is one line of the doctor report.
type checkResult struct {
	status string // PASS | WARN | FAIL
	name   string
	detail string
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your deskpilot installation",
		Long: `Verifies the configuration, the script interpreter, automation
permissions, the audit database and the HTTP port. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("deskpilot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			results := runChecks(cmd.Context(), resolveConfigPath())
			var passed, warned, failed int
			for _, r := range results {
				fmt.Printf("  [%s] %-20s %s\n", r.status, r.name, r.detail)
				switch r.status {
				case "PASS":
					passed++
				case "WARN":
					warned++
				default:
					failed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func runChecks(ctx context.Context, cfgPath string) []checkResult {
	var out []checkResult
	add := func(status, name, detail string) {
		out = append(out, checkResult{status: status, name: name, detail: detail})
	}

	if runtime.GOOS != "darwin" {
		add("WARN", "Platform", runtime.GOOS+": desktop tools need macOS")
	} else {
		add("PASS", "Platform", "darwin")
	}

	cfgPath = config.ExpandPath(cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		add("FAIL", "Config file", fmt.Sprintf("not found at %s (run 'deskpilot init')", cfgPath))
		return out
	}
	add("PASS", "Config file", cfgPath)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		add("FAIL", "Config validation", err.Error())
		return out
	}
	add("PASS", "Config validation", "valid")

	interp, err := exec.LookPath(cfg.Executor.Interpreter)
	if err != nil {
		add("FAIL", "Interpreter", fmt.Sprintf("%s not found in PATH", cfg.Executor.Interpreter))
	} else {
		add("PASS", "Interpreter", interp)
		out = append(out, checkAutomation(ctx, cfg))
	}

	if cfg.Audit.Enabled {
		if err := checkDatabase(ctx, cfg.Audit.DBPath); err != nil {
			add("FAIL", "Audit database", err.Error())
		} else {
			add("PASS", "Audit database", cfg.Audit.DBPath)
		}
	} else {
		add("WARN", "Audit database", "audit disabled")
	}

	if cfg.Server.Transport == "http" {
		if cfg.Server.AuthToken == "" {
			add("FAIL", "HTTP auth", "server.authToken is empty")
		} else {
			add("PASS", "HTTP auth", "token set")
		}
		if err := checkPort(cfg.Server.Addr); err != nil {
			add("WARN", "HTTP address", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr, err))
		} else {
			add("PASS", "HTTP address", cfg.Server.Addr+" available")
		}
	}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			add("WARN", "Log file", fmt.Sprintf("cannot create log directory: %v", err))
		} else {
			add("PASS", "Log file", cfg.Log.File)
		}
	}
	return out
}

// checkAutomation runs a harmless script through the configured interpreter.
func checkAutomation(ctx context.Context, cfg *config.Config) checkResult {
	runner := script.NewExecutor(script.Config{
		Interpreter: cfg.Executor.Interpreter,
		Args:        cfg.Executor.Args,
		Timeout:     10 * time.Second,
		Logger:      logger,
	})
	if _, err := runner.Execute(ctx, `return "ok"`); err != nil {
		return checkResult{"WARN", "Script execution", err.Error()}
	}
	return checkResult{"PASS", "Script execution", "ok"}
}

func checkDatabase(ctx context.Context, dbPath string) error {
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
