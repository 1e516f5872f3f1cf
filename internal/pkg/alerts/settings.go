package alerts

import (
	"time"

	"github.com/ManuelReschke/LedgerFox/internal/pkg/env"
)

// Settings tunes the monitored conditions and the sweep schedule.
type Settings struct {
	// DueSoonWindow is how far ahead an open payable raises a due-soon alert.
	DueSoonWindow time.Duration
	// BankLineMaxAge is the age after which an unreconciled statement line is critical.
	BankLineMaxAge time.Duration
	// FailureLookback bounds how far back failed webhooks and exports are reported.
	FailureLookback time.Duration
	// OrphanGrace is how long a gateway transaction may stay without a payment.
	OrphanGrace   time.Duration
	SweepInterval time.Duration
	LockTTL       time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		DueSoonWindow:   72 * time.Hour,
		BankLineMaxAge:  7 * 24 * time.Hour,
		FailureLookback: 24 * time.Hour,
		OrphanGrace:     time.Hour,
		SweepInterval:   15 * time.Minute,
		LockTTL:         5 * time.Minute,
	}
}

// LoadSettings reads the ALERT_* variables on top of the defaults.
func LoadSettings() Settings {
	d := DefaultSettings()
	return Settings{
		DueSoonWindow:   env.GetDuration("ALERT_DUE_SOON_WINDOW", d.DueSoonWindow),
		BankLineMaxAge:  env.GetDuration("ALERT_BANK_LINE_MAX_AGE", d.BankLineMaxAge),
		FailureLookback: env.GetDuration("ALERT_FAILURE_LOOKBACK", d.FailureLookback),
		OrphanGrace:     env.GetDuration("ALERT_ORPHAN_GRACE", d.OrphanGrace),
		SweepInterval:   env.GetDuration("ALERT_SWEEP_INTERVAL", d.SweepInterval),
		LockTTL:         env.GetDuration("ALERT_SWEEP_LOCK_TTL", d.LockTTL),
	}
}
