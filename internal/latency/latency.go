// Package latency simulates per-operation network delay for demo
// deployments of the lab API.
package latency

import (
	"context"
	"time"
)

// Operation names shared by the lab store and the session provider.
const (
	OpListTests        = "list_tests"
	OpListAppointments = "list_appointments"
	OpBook             = "book"
	OpUpdateStatus     = "update_status"
	OpAddReport        = "add_report"
	OpGetReport        = "get_report"
	OpListReports      = "list_reports"
	OpTrack            = "track"
	OpLogin            = "login"
	OpRegister         = "register"
	OpRestore          = "restore"
)

// Profile maps operation names to the delay applied before they run. A nil
// or empty profile adds no delay.
type Profile map[string]time.Duration

// Demo returns the per-operation delays of the public demo deployment.
func Demo() Profile {
	return Profile{
		OpListTests:        500 * time.Millisecond,
		OpListAppointments: 500 * time.Millisecond,
		OpBook:             1000 * time.Millisecond,
		OpUpdateStatus:     500 * time.Millisecond,
		OpAddReport:        1000 * time.Millisecond,
		OpGetReport:        300 * time.Millisecond,
		OpListReports:      500 * time.Millisecond,
		OpTrack:            700 * time.Millisecond,
		OpLogin:            1000 * time.Millisecond,
		OpRegister:         1000 * time.Millisecond,
		OpRestore:          500 * time.Millisecond,
	}
}

// Wait blocks for the operation's delay or until ctx is done.
func (p Profile) Wait(ctx context.Context, op string) error {
	d := p[op]
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
