// Package reconciliation turns authenticated provider webhooks into
// transaction, payment and invoice state.
package reconciliation

import (
	"errors"

	"github.com/ManuelReschke/LedgerFox/internal/pkg/gateway"
	"gorm.io/gorm"
)

var (
	// ErrUnauthorized covers a bad or missing signature and a missing active configuration.
	ErrUnauthorized = errors.New("reconciliation: unauthorized")
	// ErrValidation covers payloads that cannot be processed as sent.
	ErrValidation = errors.New("reconciliation: validation failed")
	// ErrNotFound is returned when no payment is linked to a provider reference.
	ErrNotFound = errors.New("reconciliation: not found")
	// ErrInvoiceMissing means a payment points at an invoice that does not
	// exist. It is a data integrity failure, never a "not linked" outcome.
	ErrInvoiceMissing = errors.New("reconciliation: invoice missing")
	// ErrConflict is a lost uniqueness race.
	ErrConflict = errors.New("reconciliation: conflict")
)

// IsClientError reports whether err is the sender's fault and retrying the
// same request cannot succeed.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, gateway.ErrUnknownProvider) ||
		errors.Is(err, gateway.ErrProviderDisabled)
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrConflict)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
