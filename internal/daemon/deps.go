// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// Runner is a long-lived background subsystem stopped through ctx.
type Runner interface {
	Run(ctx context.Context) error
}

// Deps contains what the Manager serves and supervises.
type Deps struct {
	Logger     zerolog.Logger
	APIHandler http.Handler
	// Worker is optional; when set it runs for the lifetime of the manager.
	Worker Runner
}

func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
