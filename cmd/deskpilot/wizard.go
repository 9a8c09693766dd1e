package main

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"deskpilot/internal/config"

	"github.com/google/uuid"
)

// runWizard asks a few setup questions on r/w and applies the answers to cfg.
// An empty answer keeps the default shown in brackets.
func runWizard(r io.Reader, w io.Writer, cfg *config.Config) error {
	in := bufio.NewReader(r)
	ask := func(question, def string, choices ...string) (string, error) {
		for {
			fmt.Fprintf(w, "%s [%s]: ", question, def)
			line, err := in.ReadString('\n')
			if err != nil && err != io.EOF {
				return "", err
			}
			answer := strings.TrimSpace(line)
			if answer == "" {
				return def, nil
			}
			if len(choices) == 0 || slices.Contains(choices, answer) {
				return answer, nil
			}
			fmt.Fprintf(w, "  please answer one of: %s\n", strings.Join(choices, ", "))
			if err == io.EOF {
				return def, nil
			}
		}
	}

	var err error
	if cfg.Tools.Browser.Backend, err = ask("Browser backend (applescript drives your Chrome, chromedp a separate profile)",
		cfg.Tools.Browser.Backend, "applescript", "chromedp"); err != nil {
		return err
	}
	if cfg.Security.DefaultPolicy, err = ask("Default policy for unmatched calls",
		cfg.Security.DefaultPolicy, "allow", "ask", "deny"); err != nil {
		return err
	}
	if cfg.Server.Transport, err = ask("MCP transport", cfg.Server.Transport, "stdio", "http"); err != nil {
		return err
	}
	if cfg.Server.Transport == "http" {
		if cfg.Server.Addr, err = ask("Listen address", cfg.Server.Addr); err != nil {
			return err
		}
		if cfg.Server.AuthToken == "" {
			cfg.Server.AuthToken = uuid.NewString()
			fmt.Fprintf(w, "Generated bearer token: %s\n", cfg.Server.AuthToken)
		}
	}
	audit, err := ask("Keep an audit log", "yes", "yes", "no")
	if err != nil {
		return err
	}
	cfg.Audit.Enabled = audit == "yes"

	return config.Validate(cfg)
}
