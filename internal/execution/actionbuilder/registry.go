package actionbuilder

import (
	"context"
	"fmt"
	"sort"
	"strings"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/execution"
	"github.com/ggonzalez94/swap-cli/internal/execution/planner"
	"github.com/ggonzalez94/swap-cli/internal/providers"
)

// Registry dispatches quote and action building to the configured swap
// providers by name, and picks a sensible default by route shape when the
// user does not name one.
type Registry struct {
	providers map[string]providers.SwapProvider
}

func New(providerSet map[string]providers.SwapProvider) *Registry {
	return &Registry{providers: providerSet}
}

func (r *Registry) Configure(providerSet map[string]providers.SwapProvider) {
	r.providers = providerSet
}

func (r *Registry) Provider(name string) (providers.SwapProvider, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return nil, clierr.New(clierr.CodeUsage, "--provider is required")
	}
	provider, ok := r.providers[normalized]
	if !ok {
		return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported swap provider %q; known providers: %s", normalized, strings.Join(r.ProviderNames(), ",")))
	}
	return provider, nil
}

// Resolve returns the provider to use for a route. An explicit name always
// wins; otherwise same-chain routes go to the first AMM and cross-chain
// routes to the first aggregator, in name order.
func (r *Registry) Resolve(name string, sameChain bool) (providers.SwapProvider, error) {
	if strings.TrimSpace(name) != "" {
		provider, err := r.Provider(name)
		if err != nil {
			return nil, err
		}
		if !sameChain && provider.Kind() != providers.KindAggregator {
			return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("provider %s cannot route across chains", provider.Info().Name))
		}
		return provider, nil
	}
	wanted := providers.KindAMM
	if !sameChain {
		wanted = providers.KindAggregator
	}
	for _, candidate := range r.ProviderNames() {
		provider := r.providers[candidate]
		if provider.Kind() == wanted {
			return provider, nil
		}
	}
	if sameChain {
		return nil, clierr.New(clierr.CodeUnsupported, "no same-chain swap provider is configured")
	}
	return nil, clierr.New(clierr.CodeUnsupported, "no cross-chain swap provider is configured")
}

func (r *Registry) BuildSwapAction(ctx context.Context, providerName string, req providers.QuoteRequest, opts providers.ExecutionOptions) (execution.Action, string, error) {
	sameChain := req.FromChain.CAIP2 == req.ToChain.CAIP2
	provider, err := r.Resolve(providerName, sameChain)
	if err != nil {
		return execution.Action{}, "", err
	}
	action, err := provider.BuildSwapAction(ctx, req, opts)
	return action, provider.Info().Name, err
}

// OrderProvider returns the provider's order surface, for submitting and
// tracking aggregator settlement. AMMs have none.
func (r *Registry) OrderProvider(name string) (providers.OrderProvider, error) {
	provider, err := r.Provider(name)
	if err != nil {
		return nil, err
	}
	orderProvider, ok := provider.(providers.OrderProvider)
	if !ok {
		return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("provider %s does not track orders", provider.Info().Name))
	}
	return orderProvider, nil
}

func (r *Registry) ProviderNames() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) BuildApprovalAction(req planner.ApprovalRequest) (execution.Action, error) {
	return planner.BuildApprovalAction(req)
}
