// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package canvas

import "time"

// Clock schedules the consumer's delayed transitions.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending delayed call.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
