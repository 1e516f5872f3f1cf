package gateway

import (
	"strings"
	"testing"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature_HeaderShapes(t *testing.T) {
	body := []byte(`{"referenceGateway":"ref-1","amount":100}`)
	secret := "whsec"
	sig := SignHex(body, secret)

	payload, err := ParsePayload(body)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{name: "bare hex", header: sig, want: true},
		{name: "uppercase hex", header: strings.ToUpper(sig), want: true},
		{name: "sha256 prefix", header: "sha256=" + sig, want: true},
		{name: "v1 in list", header: "t=1700000000, v1=" + sig, want: true},
		{name: "v1 second candidate", header: "v1=" + SignHex([]byte("other"), secret) + ",v1=" + sig, want: true},
		{name: "wrong digest", header: SignHex(body, "other"), want: false},
		{name: "not hex", header: "zzzz", want: false},
		{name: "unknown prefix", header: "md5=" + sig, want: false},
		{name: "empty", header: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifySignature(body, payload, tt.header, secret))
		})
	}
}

func TestVerifySignature_CanonicalPayload(t *testing.T) {
	// Whitespace and key order differ from the canonical form.
	body := []byte("{ \"status\": \"approved\",\n \"amount\": 10.50 }")
	payload, err := ParsePayload(body)
	require.NoError(t, err)

	canonical, err := CanonicalJSON(payload)
	require.NoError(t, err)
	assert.Equal(t, `{"amount":10.50,"status":"approved"}`, string(canonical))

	assert.True(t, VerifySignature(body, payload, SignHex(canonical, "s"), "s"))
}

func TestVerifySignature_EmptySecret(t *testing.T) {
	body := []byte(`{}`)
	assert.False(t, VerifySignature(body, nil, SignHex(body, ""), " "))
}

func TestMapStatus(t *testing.T) {
	tests := map[string]string{
		"approved":    models.TransactionStatusApproved,
		"PAID":        models.TransactionStatusApproved,
		" Succeeded ": models.TransactionStatusApproved,
		"in_process":  models.TransactionStatusProcessing,
		"pending":     models.TransactionStatusProcessing,
		"refused":     models.TransactionStatusDeclined,
		"Chargeback":  models.TransactionStatusCanceled,
		"cancelled":   models.TransactionStatusCanceled,
		"invalid":     models.TransactionStatusError,
		"":            models.TransactionStatusPending,
		"whatever":    models.TransactionStatusPending,
		"\x00\xff":    models.TransactionStatusPending,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapStatus(in), "MapStatus(%q)", in)
	}
}

func TestMapMethod(t *testing.T) {
	assert.Equal(t, models.PaymentMethodBoleto, MapMethod("BANK_SLIP"))
	assert.Equal(t, models.PaymentMethodCreditCard, MapMethod("credit-card"))
	assert.Equal(t, models.PaymentMethodDebitCard, MapMethod("debit"))
	assert.Equal(t, models.PaymentMethodBankTransfer, MapMethod("ted"))
	assert.Equal(t, models.PaymentMethodPix, MapMethod(""))
	assert.Equal(t, models.PaymentMethodPix, MapMethod("crypto"))
}

func TestNormalize_TopLevel(t *testing.T) {
	payload, err := ParsePayload([]byte(`{"eventId":"evt-1","referenceGateway":"ref-1","status":"approved","amount":100,"fee":2,"method":"pix"}`))
	require.NoError(t, err)

	ev, err := Normalize(payload, nil)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", ev.ProviderReference)
	assert.Equal(t, "evt-1", ev.EventID)
	assert.Equal(t, models.TransactionStatusApproved, ev.MappedStatus)
	assert.Equal(t, models.PaymentMethodPix, ev.MappedMethod)
	assert.Equal(t, "100.00", ev.GrossAmount.StringFixed(2))
	assert.Equal(t, "2.00", ev.Fee.StringFixed(2))
	assert.Equal(t, "98.00", ev.NetAmount.StringFixed(2))
}

func TestNormalize_NestedDataAndStrings(t *testing.T) {
	payload, err := ParsePayload([]byte(`{"action":"payment.updated","data":{"external_reference":"ord-9","transaction_amount":"150,30","taxa":"0.30","payment_status":"in_process","payment_type":"bank_slip"}}`))
	require.NoError(t, err)

	ev, err := Normalize(payload, NewHeaders(map[string]string{"X-Event-Id": "hdr-evt"}))
	require.NoError(t, err)
	assert.Equal(t, "ord-9", ev.ProviderReference)
	assert.Equal(t, "hdr-evt", ev.EventID)
	assert.Equal(t, models.TransactionStatusProcessing, ev.MappedStatus)
	assert.Equal(t, models.PaymentMethodBoleto, ev.MappedMethod)
	assert.Equal(t, "150.30", ev.GrossAmount.StringFixed(2))
	assert.Equal(t, "150.00", ev.NetAmount.StringFixed(2))
}

func TestNormalize_ExplicitNetAndClamp(t *testing.T) {
	payload, err := ParsePayload([]byte(`{"id":12345,"value":10,"fee":15}`))
	require.NoError(t, err)
	ev, err := Normalize(payload, nil)
	require.NoError(t, err)
	assert.Equal(t, "12345", ev.ProviderReference)
	assert.True(t, ev.NetAmount.IsZero(), "net must not go negative")
	assert.Equal(t, models.TransactionStatusPending, ev.MappedStatus)

	payload, err = ParsePayload([]byte(`{"reference":"r","amount":10,"fee":1,"net_amount":"8.50"}`))
	require.NoError(t, err)
	ev, err = Normalize(payload, nil)
	require.NoError(t, err)
	assert.Equal(t, "8.50", ev.NetAmount.StringFixed(2))
}

func TestNormalize_SkipsNonNumericCandidates(t *testing.T) {
	payload, err := ParsePayload([]byte(`{"reference":"r","amount":"n/a","total":"42.10"}`))
	require.NoError(t, err)
	ev, err := Normalize(payload, nil)
	require.NoError(t, err)
	assert.Equal(t, "42.10", ev.GrossAmount.StringFixed(2))
}

func TestNormalize_MissingReference(t *testing.T) {
	payload, err := ParsePayload([]byte(`{"status":"approved","data":{"amount":1}}`))
	require.NoError(t, err)
	_, err = Normalize(payload, nil)
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestParsePayload_RejectsNonObjects(t *testing.T) {
	for _, body := range []string{`[]`, `null`, `"x"`, `{`} {
		_, err := ParsePayload([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidPayload, body)
	}
}

func TestProviderGate(t *testing.T) {
	gate := NewProviderGate(false, "Stripe", "asaas")
	assert.NoError(t, gate.Check("stripe"))
	assert.NoError(t, gate.Check(" ASAAS "))
	assert.ErrorIs(t, gate.Check("pagarme"), ErrProviderDisabled)
	assert.ErrorIs(t, gate.Check("paypal"), ErrUnknownProvider)
	assert.Equal(t, []string{"asaas", "stripe"}, gate.Enabled())

	all := NewProviderGate(true)
	assert.NoError(t, all.Check("mercadopago"))
	assert.ErrorIs(t, all.Check("unknown"), ErrUnknownProvider)
}

func TestLoadProviderGate_Defaults(t *testing.T) {
	t.Setenv("GATEWAY_PROVIDERS_ENABLED", "")
	t.Setenv("APP_ENV", "prod")
	assert.ErrorIs(t, LoadProviderGate().Check("stripe"), ErrProviderDisabled)

	t.Setenv("APP_ENV", "test")
	assert.NoError(t, LoadProviderGate().Check("stripe"))

	t.Setenv("APP_ENV", "prod")
	t.Setenv("GATEWAY_PROVIDERS_ENABLED", "stripe,pagseguro")
	gate := LoadProviderGate()
	assert.NoError(t, gate.Check("pagseguro"))
	assert.ErrorIs(t, gate.Check("asaas"), ErrProviderDisabled)

	t.Setenv("GATEWAY_PROVIDERS_ENABLED", "*")
	assert.NoError(t, LoadProviderGate().Check("asaas"))
}
