// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/xdesign/internal/config"
	"github.com/ManuGH/xdesign/internal/log"
)

// PerformStartupChecks validates the runtime environment before the daemon
// opens its stores.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")

	if err := checkDataDir(cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	logger.Info().Str("path", cfg.DataDir).Msg("data directory is writable")

	if cfg.Provider.APIKey == "" {
		logger.Warn().Str("base_url", cfg.Provider.BaseURL).Msg("provider API key is empty; requests may be rejected")
	}
	if cfg.Images.AccessKey == "" {
		logger.Warn().Msg("image search access key is empty; generated screens will have no photos")
	}
	return nil
}

func checkDataDir(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	probe := filepath.Join(path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	return os.Remove(probe)
}
