package gateway

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

var (
	ErrUnknownProvider  = errors.New("gateway: unknown provider")
	ErrProviderDisabled = errors.New("gateway: provider not enabled")
)

var knownProviders = map[string]struct{}{
	models.GatewayProviderAsaas:       {},
	models.GatewayProviderMercadoPago: {},
	models.GatewayProviderPagarme:     {},
	models.GatewayProviderPagSeguro:   {},
	models.GatewayProviderStripe:      {},
}

// NormalizeProvider lowercases and trims a provider token.
func NormalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// IsKnownProvider reports whether provider is a supported gateway.
func IsKnownProvider(provider string) bool {
	_, ok := knownProviders[NormalizeProvider(provider)]
	return ok
}

// ProviderGate is the allow-list of providers enabled in this deployment.
// It is consulted before any transaction state is written.
type ProviderGate struct {
	allowAll bool
	enabled  map[string]struct{}
}

func NewProviderGate(allowAll bool, providers ...string) *ProviderGate {
	g := &ProviderGate{allowAll: allowAll, enabled: map[string]struct{}{}}
	for _, p := range providers {
		if p = NormalizeProvider(p); p != "" {
			g.enabled[p] = struct{}{}
		}
	}
	return g
}

// LoadProviderGate reads GATEWAY_PROVIDERS_ENABLED. "*" enables all providers.
// Without the variable, sandbox runtimes allow all and production denies all.
func LoadProviderGate() *ProviderGate {
	list := env.GetList("GATEWAY_PROVIDERS_ENABLED")
	if len(list) == 0 {
		allow := env.IsSandbox()
		if !allow {
			log.Warn("[Gateway] GATEWAY_PROVIDERS_ENABLED is empty, all providers are disabled")
		}
		return NewProviderGate(allow)
	}
	for _, p := range list {
		if p == "*" {
			return NewProviderGate(true)
		}
		if !IsKnownProvider(p) {
			log.Warnf("[Gateway] Ignoring unknown provider %q in GATEWAY_PROVIDERS_ENABLED", p)
		}
	}
	return NewProviderGate(false, list...)
}

// Check returns ErrUnknownProvider or ErrProviderDisabled when provider may
// not be used.
func (g *ProviderGate) Check(provider string) error {
	p := NormalizeProvider(provider)
	if !IsKnownProvider(p) {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if g == nil {
		return fmt.Errorf("%w: %s", ErrProviderDisabled, p)
	}
	if g.allowAll {
		return nil
	}
	if _, ok := g.enabled[p]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderDisabled, p)
	}
	return nil
}

// Enabled lists the providers currently allowed.
func (g *ProviderGate) Enabled() []string {
	var out []string
	for p := range knownProviders {
		if g.Check(p) == nil {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// ModeFromEnv returns the configuration mode used to look up credentials.
func ModeFromEnv() string {
	switch strings.ToLower(env.GetEnv("GATEWAY_MODE", "")) {
	case models.GatewayModeProduction:
		return models.GatewayModeProduction
	case models.GatewayModeSandbox:
		return models.GatewayModeSandbox
	}
	if env.IsSandbox() {
		return models.GatewayModeSandbox
	}
	return models.GatewayModeProduction
}
