// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "errors"

// ErrUnknownConfigField marks a config file key that maps to no setting.
var ErrUnknownConfigField = errors.New("unknown config field")
