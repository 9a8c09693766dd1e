package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"deskpilot/internal/config"
	"deskpilot/internal/store"

	"github.com/spf13/cobra"
)

func backupCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the config file and a snapshot of the audit database",
		Long: `Creates a compressed .tar.gz archive containing the config file and a
consistent snapshot of the audit database. The archive is timestamped by default.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if outputPath == "" {
				ts := time.Now().Format("20060102-150405")
				outputPath = filepath.Join(config.DefaultConfigDir(), "backups", "deskpilot-"+ts+".tar.gz")
			}
			files, err := createBackup(cmd.Context(), config.ExpandPath(resolveConfigPath()), cfg.Audit.DBPath, outputPath)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}
			fmt.Printf("Backup created: %s\n", outputPath)
			for _, f := range files {
				fmt.Printf("  - %s\n", f)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output archive path")
	return cmd
}

// createBackup writes cfgPath and a snapshot of dbPath (both optional) into a
// tar.gz at out and returns the archived names.
func createBackup(ctx context.Context, cfgPath, dbPath, out string) ([]string, error) {
	entries := map[string]string{} // archive name -> source path

	if _, err := os.Stat(cfgPath); err == nil {
		entries["config.yaml"] = cfgPath
	}

	if _, err := os.Stat(dbPath); err == nil {
		tmp, err := os.MkdirTemp("", "deskpilot-backup-")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(tmp)

		st, err := store.NewSQLiteStore(dbPath, logger)
		if err != nil {
			return nil, err
		}
		snap := filepath.Join(tmp, "audit.db")
		err = st.Snapshot(ctx, snap)
		st.Close()
		if err != nil {
			return nil, err
		}
		entries["audit.db"] = snap
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("nothing to back up (config: %s, db: %s)", cfgPath, dbPath)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	var names []string
	for _, name := range []string{"config.yaml", "audit.db"} {
		src, ok := entries[name]
		if !ok {
			continue
		}
		if err := addFile(tw, name, src); err != nil {
			return nil, fmt.Errorf("add %s: %w", name, err)
		}
		names = append(names, name)
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return names, f.Close()
}

func addFile(tw *tar.Writer, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, in)
	return err
}
