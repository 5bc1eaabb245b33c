// Package config loads platform and tenant configuration: capability routes,
// provider credentials, and budget overrides. It implements the capability
// router's TenantConfigSource on top of a viper-backed file, with per-tenant
// sections layered over platform defaults.
package config

import (
	"context"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/relaycrm/skillengine/pkg/guardrail"
	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

// RouteConfig maps a capability to a provider and model.
type RouteConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
}

// CredentialConfig holds one provider's credentials.
type CredentialConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// BudgetConfig overrides the guardrail limits. Zero fields inherit defaults.
type BudgetConfig struct {
	CharsPerToken    float64 `mapstructure:"chars_per_token" yaml:"chars_per_token"`
	SoftTokenCeiling int     `mapstructure:"soft_token_ceiling" yaml:"soft_token_ceiling"`
	HardTokenCeiling int     `mapstructure:"hard_token_ceiling" yaml:"hard_token_ceiling"`
	ClassifyItemCap  int     `mapstructure:"classify_item_cap" yaml:"classify_item_cap"`
}

// TenantConfig is one tenant's section: routes and credentials layered over
// the platform defaults, plus an optional budget override.
type TenantConfig struct {
	Routes      map[string]RouteConfig      `mapstructure:"routes" yaml:"routes"`
	Credentials map[string]CredentialConfig `mapstructure:"credentials" yaml:"credentials"`
	Budget      *BudgetConfig               `mapstructure:"budget" yaml:"budget"`
}

// Config is the full platform configuration.
type Config struct {
	LogLevel  string                  `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string                  `mapstructure:"log_format" yaml:"log_format"`
	Defaults  TenantConfig            `mapstructure:"defaults" yaml:"defaults"`
	Tenants   map[string]TenantConfig `mapstructure:"tenants" yaml:"tenants"`
}

// Load reads configuration from the given file (or the default search path
// when empty) with SKILLENGINE_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("skillengine")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.skillengine")
	}
	v.SetEnvPrefix("SKILLENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read configuration")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}
	return &config, nil
}

// DecodeTenant converts a dynamic tenant section, e.g. from an admin API
// payload, into a typed TenantConfig.
func DecodeTenant(raw map[string]any) (TenantConfig, error) {
	var tenant TenantConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &tenant,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return tenant, errors.Wrap(err, "failed to create tenant decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return tenant, errors.Wrap(err, "failed to decode tenant configuration")
	}
	return tenant, nil
}

// Source adapts a Config to the capability router's TenantConfigSource.
// Tenant sections override platform defaults per capability and per provider.
// Updates through SetTenant are safe for concurrent readers.
type Source struct {
	mu     sync.RWMutex
	config *Config
}

// NewSource wraps a loaded configuration.
func NewSource(config *Config) *Source {
	if config.Tenants == nil {
		config.Tenants = make(map[string]TenantConfig)
	}
	return &Source{config: config}
}

// GetCapabilityRouting resolves the tenant's routes layered over defaults.
// Every capability must resolve to a provider and model or the tenant is
// misconfigured.
func (s *Source) GetCapabilityRouting(_ context.Context, tenantID string) (map[llmtypes.Capability]llmtypes.ProviderModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := make(map[string]RouteConfig, len(s.config.Defaults.Routes))
	for capability, route := range s.config.Defaults.Routes {
		merged[capability] = route
	}
	if tenant, ok := s.config.Tenants[tenantID]; ok {
		for capability, route := range tenant.Routes {
			merged[capability] = route
		}
	}

	routes := make(map[llmtypes.Capability]llmtypes.ProviderModel, len(merged))
	for name, route := range merged {
		capability := llmtypes.Capability(name)
		if !capability.Valid() {
			return nil, skilltypes.NewConfigurationError("unknown capability %q in routing config", name)
		}
		if route.Provider == "" || route.Model == "" {
			return nil, skilltypes.NewConfigurationError(
				"route for capability %s is missing a provider or model", name)
		}
		routes[capability] = llmtypes.ProviderModel{Provider: route.Provider, Model: route.Model}
	}
	return routes, nil
}

// GetProviderCredentials returns the tenant's credentials for the provider,
// falling back to the platform defaults.
func (s *Source) GetProviderCredentials(_ context.Context, tenantID, provider string) (llmtypes.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tenant, ok := s.config.Tenants[tenantID]; ok {
		if creds, ok := tenant.Credentials[provider]; ok && creds.APIKey != "" {
			return llmtypes.Credentials{APIKey: creds.APIKey, BaseURL: creds.BaseURL}, nil
		}
	}
	if creds, ok := s.config.Defaults.Credentials[provider]; ok && creds.APIKey != "" {
		return llmtypes.Credentials{APIKey: creds.APIKey, BaseURL: creds.BaseURL}, nil
	}
	return llmtypes.Credentials{}, skilltypes.NewConfigurationError(
		"tenant %s has no credentials for provider %s and no platform default exists", tenantID, provider)
}

// GuardrailLimits returns the tenant's budget limits, layered over defaults.
func (s *Source) GuardrailLimits(tenantID string) guardrail.Limits {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limits := guardrail.DefaultLimits()
	apply := func(budget *BudgetConfig) {
		if budget == nil {
			return
		}
		if budget.CharsPerToken > 0 {
			limits.CharsPerToken = budget.CharsPerToken
		}
		if budget.SoftTokenCeiling > 0 {
			limits.SoftTokenCeiling = budget.SoftTokenCeiling
		}
		if budget.HardTokenCeiling > 0 {
			limits.HardTokenCeiling = budget.HardTokenCeiling
		}
		if budget.ClassifyItemCap > 0 {
			limits.ClassifyItemCap = budget.ClassifyItemCap
		}
	}
	apply(s.config.Defaults.Budget)
	if tenant, ok := s.config.Tenants[tenantID]; ok {
		apply(tenant.Budget)
	}
	return limits
}

// SetTenant replaces a tenant's section. Callers that hold a router must
// invalidate its route cache for the tenant afterwards.
func (s *Source) SetTenant(tenantID string, tenant TenantConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Tenants[tenantID] = tenant
}
