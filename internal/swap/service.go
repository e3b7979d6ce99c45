// Package swap is the quoting and routing engine behind the CLI commands.
// It owns provider selection by route shape, wraps every provider fetch in
// the shared retry policy, and memoizes venue token lists for the life of
// the process.
package swap

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/execution"
	"github.com/ggonzalez94/swap-cli/internal/execution/actionbuilder"
	"github.com/ggonzalez94/swap-cli/internal/id"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/providers"
	"github.com/ggonzalez94/swap-cli/internal/registry"
)

// Service routes engine operations to the configured providers. Quote,
// order and token-list fetches are network bound and run under the retry
// policy; planning is not retried because aggregator plans reserve
// provider-side state (deposit addresses) that a blind replay would leak.
type Service struct {
	registry *actionbuilder.Registry
	retry    execution.RetryPolicy
	sleep    execution.SleepFunc
	now      func() time.Time

	mu     sync.Mutex
	tokens map[string][]model.TokenInfo
}

func New(reg *actionbuilder.Registry) *Service {
	return &Service{
		registry: reg,
		retry:    execution.DefaultRetryPolicy(),
		now:      time.Now,
		tokens:   map[string][]model.TokenInfo{},
	}
}

// ResolveName reports which provider a route would dispatch to without
// contacting it. Callers use this to build cache keys before fetching.
func (s *Service) ResolveName(name string, sameChain bool) (string, error) {
	provider, err := s.registry.Resolve(name, sameChain)
	if err != nil {
		return "", err
	}
	return provider.Info().Name, nil
}

func (s *Service) ProviderNames() []string {
	return s.registry.ProviderNames()
}

// Quote dispatches by route shape: same-chain requests go to an AMM,
// cross-chain requests to an aggregator, unless the caller names a
// provider explicitly. Transient provider failures are retried.
func (s *Service) Quote(ctx context.Context, providerName string, req providers.QuoteRequest) (model.SwapQuote, string, error) {
	provider, err := s.registry.Resolve(providerName, req.FromChain.CAIP2 == req.ToChain.CAIP2)
	if err != nil {
		return model.SwapQuote{}, "", err
	}
	name := provider.Info().Name
	var quote model.SwapQuote
	err = execution.WithRetry(ctx, s.retry, s.sleep, func(ctx context.Context) error {
		var fetchErr error
		quote, fetchErr = provider.GetQuote(ctx, req)
		return fetchErr
	})
	if err != nil {
		return model.SwapQuote{}, name, err
	}
	return quote, name, nil
}

// Plan builds an executable action for the route. Exactly one attempt.
func (s *Service) Plan(ctx context.Context, providerName string, req providers.QuoteRequest, opts providers.ExecutionOptions) (execution.Action, string, error) {
	return s.registry.BuildSwapAction(ctx, providerName, req, opts)
}

// Order fetches settlement status from the provider tracking the order.
func (s *Service) Order(ctx context.Context, providerName, orderID string) (model.Order, string, error) {
	orderProvider, err := s.registry.OrderProvider(providerName)
	if err != nil {
		return model.Order{}, "", err
	}
	name := orderProvider.Info().Name
	var order model.Order
	err = execution.WithRetry(ctx, s.retry, s.sleep, func(ctx context.Context) error {
		var fetchErr error
		order, fetchErr = orderProvider.LookupOrder(ctx, orderID)
		return fetchErr
	})
	if err != nil {
		return model.Order{}, name, err
	}
	return order, name, nil
}

// Tokens returns a venue's tradable token list for one chain. Lists are
// memoized per provider and chain; a refresh replaces the entry wholesale
// so a partial fetch never shadows a complete one. With no provider named,
// the first provider that publishes token lists is used.
func (s *Service) Tokens(ctx context.Context, providerName string, chain id.Chain) ([]model.TokenInfo, string, error) {
	listProvider, name, err := s.tokenListProvider(providerName)
	if err != nil {
		return nil, "", err
	}

	key := name + "|" + chain.CAIP2
	s.mu.Lock()
	cached, ok := s.tokens[key]
	s.mu.Unlock()
	if ok {
		return cached, name, nil
	}

	var list []model.TokenInfo
	err = execution.WithRetry(ctx, s.retry, s.sleep, func(ctx context.Context) error {
		var fetchErr error
		list, fetchErr = listProvider.Tokens(ctx, chain)
		return fetchErr
	})
	if err != nil {
		return nil, name, err
	}

	s.mu.Lock()
	s.tokens[key] = list
	s.mu.Unlock()
	return list, name, nil
}

// TokenSource resolves which provider a token listing would come from,
// without fetching anything. Callers use it to key caches by venue before
// paying for the fetch.
func (s *Service) TokenSource(providerName string) (string, error) {
	_, name, err := s.tokenListProvider(providerName)
	return name, err
}

func (s *Service) tokenListProvider(providerName string) (providers.TokenListProvider, string, error) {
	if strings.TrimSpace(providerName) != "" {
		provider, err := s.registry.Provider(providerName)
		if err != nil {
			return nil, "", err
		}
		listProvider, ok := provider.(providers.TokenListProvider)
		if !ok {
			return nil, "", clierr.New(clierr.CodeUnsupported, fmt.Sprintf("provider %s does not publish token lists", provider.Info().Name))
		}
		return listProvider, provider.Info().Name, nil
	}
	for _, name := range s.registry.ProviderNames() {
		provider, err := s.registry.Provider(name)
		if err != nil {
			continue
		}
		if listProvider, ok := provider.(providers.TokenListProvider); ok {
			return listProvider, provider.Info().Name, nil
		}
	}
	return nil, "", clierr.New(clierr.CodeUnsupported, "no configured provider publishes token lists")
}

// Chains lists the chains the engine can route on, enriched with the
// per-chain infrastructure addresses from the contract registry.
func (s *Service) Chains() []model.ChainInfo {
	known := id.Chains()
	out := make([]model.ChainInfo, 0, len(known))
	for _, chain := range known {
		info := model.ChainInfo{
			Name:         chain.Name,
			Slug:         chain.Slug,
			ChainID:      chain.CAIP2,
			EVMChainID:   chain.EVMChainID,
			NativeSymbol: chain.NativeSymbol,
			Multicall:    registry.Multicall3Address,
		}
		if wrapped, ok := registry.WrappedNative(chain.EVMChainID); ok {
			info.WrappedNative = wrapped
		}
		if rpc, ok := registry.DefaultRPCURL(chain.EVMChainID); ok {
			info.RPCURL = rpc
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}
