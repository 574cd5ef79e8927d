// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/sigil-dev/aegis/internal/config"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the binary, config file, configured backends, safety backend, database location, disk space and the running gateway.",
		RunE:  runDoctor,
	}

	cmd.Flags().String("address", defaultAddress, "gateway address to check")

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	addr, _ := cmd.Flags().GetString("address")

	cfg, cfgPath, cfgErr := loadConfig(cmd)

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(cfgPath, cfgErr) }},
		{"Backends", func() string { return checkBackends(cfg) }},
		{"Safety", func() string { return checkSafety(cfg) }},
		{"Database", func() string { return checkDatabase(cfg) }},
		{"Disk Space", func() string { return checkDiskSpace(cfg) }},
		{"Gateway", func() string { return checkGateway(cmd.Context(), addr) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("aegis %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(path string, err error) string {
	switch {
	case err != nil:
		return fmt.Sprintf("invalid: %s", err)
	case path != "":
		return fmt.Sprintf("loaded from %s", path)
	default:
		return "using defaults (no config file found)"
	}
}

func checkBackends(cfg *config.Config) string {
	if cfg == nil {
		return "unknown (config did not load)"
	}
	configured := cfg.Providers.Configured()
	if len(configured) == 0 {
		return "none configured (models answer with the dummy backend)"
	}
	names := make([]string, len(configured))
	for i, k := range configured {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func checkSafety(cfg *config.Config) string {
	if cfg == nil {
		return "unknown (config did not load)"
	}
	s := cfg.Safety
	if s.Backend == "http" || (s.Backend == "" && s.GuardrailURL != "" && s.DiscoveryURL != "") {
		return fmt.Sprintf("http guardrail %s, discovery %s (threshold %.2f)", s.GuardrailURL, s.DiscoveryURL, s.Threshold)
	}
	return fmt.Sprintf("local rules (threshold %.2f)", s.Threshold)
}

// storeDir is the directory holding the database file.
func storeDir(cfg *config.Config) string {
	if cfg == nil {
		return "."
	}
	path, err := filepath.Abs(cfg.Store.Path)
	if err != nil {
		return filepath.Dir(cfg.Store.Path)
	}
	return filepath.Dir(path)
}

func checkDatabase(cfg *config.Config) string {
	if cfg == nil {
		return "unknown (config did not load)"
	}
	info, err := os.Stat(cfg.Store.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("%s (not created yet, run 'aegis seed')", cfg.Store.Path)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s (%s)", cfg.Store.Path, formatBytes(uint64(info.Size())))
}

func checkDiskSpace(cfg *config.Config) string {
	path := storeDir(cfg)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to home directory if the data dir doesn't exist yet.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

func checkGateway(ctx context.Context, addr string) string {
	var body healthStatus
	if err := newGatewayClient(addr, "").getJSON(ctx, "/health", &body); err != nil {
		if sigilerr.HasCode(err, sigilerr.CodeCLIGatewayNotRunning) {
			return fmt.Sprintf("not running at %s (run 'aegis serve')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
