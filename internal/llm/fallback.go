package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// FallbackProvider chains providers so an outage of the primary LLM API
// degrades to the next configured one instead of failing the turn. Order
// matters: the first provider is the default, the rest are tried only
// after it errors.
type FallbackProvider struct {
	chain  []Provider
	logger *slog.Logger
}

// NewFallbackProvider builds a chain from the given providers.
// At least one provider is required.
func NewFallbackProvider(providers []Provider, logger *slog.Logger) *FallbackProvider {
	if len(providers) == 0 {
		panic("FallbackProvider requires at least one provider")
	}
	return &FallbackProvider{chain: providers, logger: logger}
}

// SendMessage walks the chain until a provider answers. Errors from
// earlier providers are logged and folded into the final error when
// every provider fails.
func (f *FallbackProvider) SendMessage(ctx context.Context, req *Request) (*Response, error) {
	var failures []string
	for i, p := range f.chain {
		resp, err := p.SendMessage(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.InfoContext(ctx, "llm fallback answered",
					slog.String("provider", p.Name()),
					slog.Int("attempt", i+1),
				)
			}
			return resp, nil
		}

		failures = append(failures, fmt.Sprintf("%s: %v", p.Name(), err))
		f.logger.WarnContext(ctx, "llm provider failed",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
			slog.Int("remaining", len(f.chain)-i-1),
		)

		// A canceled turn should not burn through the rest of the chain.
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("all llm providers failed: %s", strings.Join(failures, "; "))
}

// Name lists the chain in try order, e.g. "openai>groq".
func (f *FallbackProvider) Name() string {
	names := make([]string, len(f.chain))
	for i, p := range f.chain {
		names[i] = p.Name()
	}
	return strings.Join(names, ">")
}
