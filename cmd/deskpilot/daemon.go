package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"deskpilot/internal/config"

	"github.com/spf13/cobra"
)

const launchdLabel = "com.deskpilot.serve"

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the HTTP MCP server as a launchd agent",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install a launchd agent that runs 'deskpilot serve --transport http'",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runtime.GOOS != "darwin" {
				return fmt.Errorf("unsupported OS: %s (launchd requires darwin)", runtime.GOOS)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.AuthToken == "" {
				return fmt.Errorf("set server.authToken before installing the daemon")
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			plistPath := launchdPlistPath()
			logDir := filepath.Join(config.DefaultConfigDir(), "logs")
			if err := os.MkdirAll(logDir, 0o755); err != nil {
				return err
			}
			plist := renderPlist(execPath, config.ExpandPath(resolveConfigPath()), logDir)
			if err := os.MkdirAll(filepath.Dir(plistPath), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(plistPath, []byte(plist), 0o644); err != nil {
				return err
			}
			fmt.Printf("Daemon installed: %s\n", plistPath)
			fmt.Printf("To start: launchctl load %s\n", plistPath)
			fmt.Printf("To stop:  launchctl unload %s\n", plistPath)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the launchd agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			plistPath := launchdPlistPath()
			if err := os.Remove(plistPath); err != nil {
				return fmt.Errorf("remove plist: %w", err)
			}
			fmt.Printf("Daemon uninstalled: %s\n", plistPath)
			return nil
		},
	})
	return cmd
}

func launchdPlistPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
}

func renderPlist(execPath, cfgPath, logDir string) string {
	r := strings.NewReplacer(
		"{{LABEL}}", launchdLabel,
		"{{EXEC}}", xmlEscape(execPath),
		"{{CONFIG}}", xmlEscape(cfgPath),
		"{{LOG}}", xmlEscape(filepath.Join(logDir, "deskpilot.log")),
		"{{ERR_LOG}}", xmlEscape(filepath.Join(logDir, "deskpilot-error.log")),
	)
	return r.Replace(launchdTemplate)
}

func xmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>serve</string>
        <string>--transport</string>
        <string>http</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`
