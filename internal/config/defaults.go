package config

func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Executor: ExecutorConfig{
			Interpreter:    "osascript",
			Args:           []string{"-"},
			TimeoutSeconds: 60,
		},
		Tools: ToolsConfig{
			MaxResultChars: 4000,
			MessageCount:   10,
			Browser: BrowserConfig{
				Backend:  "applescript",
				Headless: true,
			},
		},
		Security: SecurityConfig{
			DefaultPolicy:   "allow",
			Blacklist:       defaultBlacklist(),
			ConfirmPatterns: defaultConfirmPatterns(),
			ConfirmTools:    []string{"send_text_to_contact_on_imessage"},
			AuditLog:        true,
			RateLimit:       RateLimitConfig{PerMinute: 60, Burst: 10},
		},
		Audit: AuditConfig{
			Enabled:       true,
			DBPath:        "~/.deskpilot/audit.db",
			RetentionDays: 30,
			PruneSchedule: "@daily",
		},
		Server: ServerConfig{
			Transport: "stdio",
			Addr:      "127.0.0.1:8765",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}

// defaultBlacklist blocks AppleScript that escapes to a destructive shell.
func defaultBlacklist() []string {
	return []string{
		`do shell script\s+"[^"]*rm -rf /`,
		`do shell script\s+"[^"]*mkfs`,
		`do shell script\s+"[^"]*dd if=`,
		"with administrator privileges",
	}
}

func defaultConfirmPatterns() []string {
	return []string{
		"do shell script",
		"empty the trash",
		"empty trash",
		"shut down",
		"restart",
		"log out",
	}
}
