// Package llm implements the capability router: tenant-scoped routing of
// logical capabilities (extract, classify, reason, generate) to concrete
// provider+model pairs, with heterogeneous provider wire formats normalized
// behind one response shape, bounded retry for transient failures, and
// fire-and-forget usage accounting.
package llm

import (
	"context"

	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
)

// ProviderAdapter translates between the normalized request/response shapes
// and one provider's native wire format. Adapters are stateless with respect
// to conversations; the full message history arrives on every call.
type ProviderAdapter interface {
	// Provider returns the routing name, e.g. "anthropic" or "openai".
	Provider() string
	// Complete sends one normalized request and returns the normalized
	// response with usage costed from the model's price table. Failures are
	// returned as *llmtypes.ProviderError.
	Complete(ctx context.Context, model string, creds llmtypes.Credentials, req llmtypes.Request) (*llmtypes.Response, error)
}

// TenantConfigSource supplies per-tenant capability routing and provider
// credentials. Implementations resolve tenant-supplied credentials first and
// fall back to the platform defaults.
type TenantConfigSource interface {
	GetCapabilityRouting(ctx context.Context, tenantID string) (map[llmtypes.Capability]llmtypes.ProviderModel, error)
	GetProviderCredentials(ctx context.Context, tenantID, provider string) (llmtypes.Credentials, error)
}
