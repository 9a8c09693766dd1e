package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"deskpilot/internal/browser"
	"deskpilot/internal/config"
	"deskpilot/internal/mcpserver"
	"deskpilot/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:           "deskpilot",
		Short:         "deskpilot: drive the macOS desktop from an AI agent",
		Long:          "deskpilot exposes AppleScript, Chrome, Messages, Contacts and speech as MCP tools, gated by a security policy and an audit log.",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				// config commands must still work on a broken file.
				return nil
			}
			l, closeFn, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			logger = l
			cobra.OnFinalize(closeFn)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.deskpilot/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(runCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(daemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	var force, interactive bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if interactive {
				if err := runWizard(os.Stdin, os.Stdout, cfg); err != nil {
					return err
				}
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "answer a few setup questions")
	return cmd
}

func serveCmd() *cobra.Command {
	var transport, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the desktop tools over MCP (stdio or HTTP)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if transport != "" {
				cfg.Server.Transport = transport
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, ttyConfirm)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.store != nil && cfg.Audit.PruneSchedule != "" && cfg.Audit.RetentionDays > 0 {
				retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
				pruner, err := store.StartPruner(a.store, cfg.Audit.PruneSchedule, retention, logger)
				if err != nil {
					return err
				}
				defer pruner.Stop()
			}

			server := mcpserver.NewServer(a.registry, version, logger)
			logger.Info("serving", "transport", cfg.Server.Transport, "tools", len(a.registry.Names()))

			if cfg.Server.Transport == "http" {
				httpCfg := mcpserver.HTTPConfig{
					Addr:      cfg.Server.Addr,
					AuthToken: cfg.Server.AuthToken,
					Logger:    logger,
				}
				if cfg.Metrics.Enabled {
					httpCfg.Metrics = a.metrics.Handler()
					httpCfg.MetricsPath = cfg.Metrics.Endpoint
				}
				return mcpserver.ServeHTTP(ctx, server, httpCfg)
			}
			if err := mcpserver.ServeStdio(ctx, server); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "stdio | http (overrides server.transport)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for http (overrides server.addr)")
	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Audit.Enabled = false
			a, err := newApp(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, def := range a.registry.GetDefinitions() {
				fmt.Fprintf(tw, "%s\t%s\n", def.Name, firstLine(def.Description))
			}
			return tw.Flush()
		},
	}
}

func runCmd() *cobra.Command {
	var jsonArgs, output string
	cmd := &cobra.Command{
		Use:   "run <tool> [key=value ...]",
		Short: "Run one tool from the terminal (e.g. run say_text text=hello)",
		Long: `Run one tool from the terminal. Arguments are key=value pairs; --json
takes a JSON object of arguments that is merged over them, for numbers
and other structured values (e.g. --json '{"count": 5}').`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "text" && output != "json" {
				return fmt.Errorf("--output must be text or json, got %q", output)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			toolArgs, err := parseToolArgs(args[1:], jsonArgs)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, ttyConfirm)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.registry.Execute(ctx, args[0], toolArgs)
			if output == "json" {
				res := map[string]any{"tool": args[0], "output": out}
				if err != nil {
					res["error"] = err.Error()
				}
				data, _ := json.MarshalIndent(res, "", "  ")
				fmt.Println(string(data))
				return err
			}
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&jsonArgs, "json", "", "tool arguments as a JSON object, merged over key=value pairs")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "result format: text | json")
	return cmd
}

func auditCmd() *cobra.Command {
	var (
		limit    int
		toolName string
		prune    bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(cfg.Audit.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			ctx := cmd.Context()

			if prune {
				if cfg.Audit.RetentionDays < 1 {
					return fmt.Errorf("audit.retentionDays must be at least 1, got %d", cfg.Audit.RetentionDays)
				}
				retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
				n, err := st.Prune(ctx, retention)
				if err != nil {
					return fmt.Errorf("prune: %w", err)
				}
				fmt.Printf("Pruned %d entries older than %d days\n", n, cfg.Audit.RetentionDays)
				return nil
			}

			entries, err := st.Recent(ctx, toolName, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTION\tTOOL\tRESULT\tDURATION\tDETAILS")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Local().Format(time.DateTime), e.Action, e.ToolName, e.Result,
					e.Duration, firstLine(e.Details))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().StringVar(&toolName, "tool", "", "only show entries for this tool")
	cmd.Flags().BoolVar(&prune, "prune", false, "delete entries older than audit.retentionDays")
	return cmd
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [url]",
		Short: "Open the chromedp browser profile so you can sign in (default: Google Contacts)",
		Long:  "Opens a visible Chrome window on the chromedp profile. Cookies are saved for later headless use.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			url := "https://contacts.google.com/"
			if len(args) == 1 {
				url = args[0]
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bridge := browser.NewBridge(browser.BridgeConfig{
				ProfileDir: cfg.Tools.Browser.ProfileDir,
				Logger:     logger,
			})
			defer bridge.Close()
			return bridge.Login(ctx, url)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. executor.timeoutSeconds)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. tools.browser.backend chromedp)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			paths := config.ListPaths(config.Sanitize(cfg))
			data, _ := json.MarshalIndent(paths, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
