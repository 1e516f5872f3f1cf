package gateway

import (
	"strings"

	"github.com/ManuelReschke/LedgerFox/app/models"
)

var statusTable = map[string]string{
	"approved":   models.TransactionStatusApproved,
	"paid":       models.TransactionStatusApproved,
	"succeeded":  models.TransactionStatusApproved,
	"success":    models.TransactionStatusApproved,
	"pending":    models.TransactionStatusProcessing,
	"in_process": models.TransactionStatusProcessing,
	"processing": models.TransactionStatusProcessing,
	"rejected":   models.TransactionStatusDeclined,
	"declined":   models.TransactionStatusDeclined,
	"failed":     models.TransactionStatusDeclined,
	"denied":     models.TransactionStatusDeclined,
	"refused":    models.TransactionStatusDeclined,
	"cancelled":  models.TransactionStatusCanceled,
	"canceled":   models.TransactionStatusCanceled,
	"refunded":   models.TransactionStatusCanceled,
	"chargeback": models.TransactionStatusCanceled,
	"error":      models.TransactionStatusError,
	"invalid":    models.TransactionStatusError,
}

// MapStatus converts an external provider status into a transaction status.
// Unknown values map to pending.
func MapStatus(external string) string {
	if s, ok := statusTable[strings.ToLower(strings.TrimSpace(external))]; ok {
		return s
	}
	return models.TransactionStatusPending
}

var methodTable = map[string]string{
	"pix":           models.PaymentMethodPix,
	"boleto":        models.PaymentMethodBoleto,
	"bank_slip":     models.PaymentMethodBoleto,
	"ticket":        models.PaymentMethodBoleto,
	"credit_card":   models.PaymentMethodCreditCard,
	"creditcard":    models.PaymentMethodCreditCard,
	"card":          models.PaymentMethodCreditCard,
	"credit":        models.PaymentMethodCreditCard,
	"debit_card":    models.PaymentMethodDebitCard,
	"debitcard":     models.PaymentMethodDebitCard,
	"debit":         models.PaymentMethodDebitCard,
	"bank_transfer": models.PaymentMethodBankTransfer,
	"transfer":      models.PaymentMethodBankTransfer,
	"ted":           models.PaymentMethodBankTransfer,
	"doc":           models.PaymentMethodBankTransfer,
}

// MapMethod converts an external payment method token. Unknown values map to pix.
func MapMethod(external string) string {
	key := strings.ToLower(strings.TrimSpace(external))
	key = strings.ReplaceAll(key, "-", "_")
	if m, ok := methodTable[key]; ok {
		return m
	}
	return models.PaymentMethodPix
}
