package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ggonzalez94/swap-cli/internal/balances"
	"github.com/ggonzalez94/swap-cli/internal/cache"
	"github.com/ggonzalez94/swap-cli/internal/config"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/execution"
	"github.com/ggonzalez94/swap-cli/internal/execution/actionbuilder"
	"github.com/ggonzalez94/swap-cli/internal/httpx"
	"github.com/ggonzalez94/swap-cli/internal/id"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/out"
	"github.com/ggonzalez94/swap-cli/internal/policy"
	"github.com/ggonzalez94/swap-cli/internal/providers"
	"github.com/ggonzalez94/swap-cli/internal/providers/fusion"
	"github.com/ggonzalez94/swap-cli/internal/providers/oneclick"
	"github.com/ggonzalez94/swap-cli/internal/providers/uniswapv3"
	"github.com/ggonzalez94/swap-cli/internal/registry"
	"github.com/ggonzalez94/swap-cli/internal/schema"
	"github.com/ggonzalez94/swap-cli/internal/swap"
	"github.com/ggonzalez94/swap-cli/internal/version"
	"github.com/spf13/cobra"
)

// Quotes drift with every block, so they are cached only long enough to
// absorb immediate re-asks by an agent loop.
const quoteCacheTTL = 15 * time.Second

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner        *Runner
	flags         config.GlobalFlags
	settings      config.Settings
	cache         *cache.Store
	actionStore   *execution.Store
	root          *cobra.Command
	lastCommand   string
	lastWarnings  []string
	lastProviders []model.ProviderStatus
	lastPartial   bool

	engine        *swap.Service
	builders      *actionbuilder.Registry
	swapProviders map[string]providers.SwapProvider
	providerInfos []model.ProviderInfo
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	state.resetCommandDiagnostics()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if err == nil {
		state.closeStores()
		return 0
	}

	state.renderError("", err, state.lastWarnings, state.lastProviders, state.lastPartial)
	state.closeStores()
	return clierr.ExitCode(err)
}

func (s *runtimeState) closeStores() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.actionStore != nil {
		_ = s.actionStore.Close()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Agent-first swap quoting and execution CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}

			if s.engine == nil {
				httpClient := httpx.New(settings.Timeout, settings.Retries)
				s.swapProviders = map[string]providers.SwapProvider{
					"uniswapv3": uniswapv3.New(),
					"fusion":    fusion.New(httpClient, settings.FusionAPIKey),
					"oneclick":  oneclick.New(settings.OneClickJWT),
				}
				s.builders = actionbuilder.New(s.swapProviders)
				s.engine = swap.New(s.builders)
				s.providerInfos = []model.ProviderInfo{
					s.swapProviders["uniswapv3"].Info(),
					s.swapProviders["fusion"].Info(),
					s.swapProviders["oneclick"].Info(),
				}
			}

			if settings.CacheEnabled && shouldOpenCache(path) && s.cache == nil {
				cacheStore, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cache", err)
				}
				s.cache = cacheStore
			}

			if shouldOpenActionStore(path) && s.actionStore == nil {
				if err := s.ensureActionStore(); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.Strict, "strict", false, "Fail on partial results")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Provider request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per provider request")
	cmd.PersistentFlags().StringVar(&s.flags.MaxStale, "max-stale", "", "Maximum stale fallback window after TTL expiry")
	cmd.PersistentFlags().BoolVar(&s.flags.NoStale, "no-stale", false, "Reject stale cache entries")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(s.newTokensCommand())
	cmd.AddCommand(s.newBalancesCommand())
	cmd.AddCommand(s.newQuoteCommand())
	s.addSwapExecutionCommands(cmd)
	cmd.AddCommand(s.newOrderCommand())
	cmd.AddCommand(s.newApprovalsCommand())
	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = strings.Join(args, " ")
			}
			data, err := schema.Build(s.root, path)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil, false)
		},
	}
	return cmd
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "providers",
		Short: "List configured swap providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.providerInfos, nil, cacheMetaBypass(), nil, false)
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List supported providers and API key metadata (no keys required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.providerInfos, nil, cacheMetaBypass(), nil, false)
		},
	}
	root.AddCommand(list)
	return root
}

func (s *runtimeState) newChainsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chains",
		Short: "List supported chains with routing infrastructure",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.engine.Chains(), nil, cacheMetaBypass(), nil, false)
		},
	}
	return cmd
}

func (s *runtimeState) newTokensCommand() *cobra.Command {
	var chainArg, providerArg string
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "List tokens tradable on a venue for a chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := id.ParseChain(chainArg)
			if err != nil {
				return err
			}
			providerName, err := s.engine.TokenSource(providerArg)
			if err != nil {
				return err
			}
			req := map[string]any{"chain": chain.CAIP2, "provider": providerName}
			key := cacheKey(trimRootPath(cmd.CommandPath()), req)
			return s.runCachedCommand(trimRootPath(cmd.CommandPath()), key, cache.DefaultListTTL, func(ctx context.Context) (any, []model.ProviderStatus, []string, bool, error) {
				start := time.Now()
				data, name, err := s.engine.Tokens(ctx, providerName, chain)
				status := []model.ProviderStatus{{Name: name, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				return data, status, nil, false, err
			})
		},
	}
	cmd.Flags().StringVar(&chainArg, "chain", "", "Chain identifier (CAIP-2, chain ID, or slug)")
	cmd.Flags().StringVar(&providerArg, "provider", "", "Venue to list tokens from (defaults to the first provider with an inventory)")
	_ = cmd.MarkFlagRequired("chain")
	return cmd
}

func (s *runtimeState) newBalancesCommand() *cobra.Command {
	var chainArg, ownerArg, assetsArg, rpcURL string
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Read wallet balances for registry tokens on a chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := id.ParseChain(chainArg)
			if err != nil {
				return err
			}
			owner := strings.TrimSpace(ownerArg)
			if !common.IsHexAddress(owner) {
				return clierr.New(clierr.CodeUsage, "--owner must be a valid EVM address")
			}
			assets, err := resolveBalanceAssets(chain, assetsArg)
			if err != nil {
				return err
			}
			endpoint, err := registry.ResolveRPCURL(rpcURL, chain.EVMChainID)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			client, err := ethclient.DialContext(ctx, endpoint)
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
			}
			defer client.Close()

			addresses := make([]string, 0, len(assets))
			for _, asset := range assets {
				addresses = append(addresses, asset.Address)
			}
			start := time.Now()
			balanceMap := balances.NewBatcher(client).Fetch(ctx, chain.EVMChainID, common.HexToAddress(owner), addresses)
			status := []model.ProviderStatus{{Name: "rpc", Status: "ok", LatencyMS: time.Since(start).Milliseconds()}}

			report := model.BalancesReport{
				Owner:     common.HexToAddress(owner).Hex(),
				ChainID:   chain.CAIP2,
				Balances:  make([]model.BalanceEntry, 0, len(assets)),
				FetchedAt: s.runner.now().UTC().Format(time.RFC3339),
			}
			for _, asset := range assets {
				raw := balanceMap[balances.Key(asset.Address, chain.EVMChainID)]
				if raw == nil {
					raw = new(big.Int)
				}
				report.Balances = append(report.Balances, model.BalanceEntry{
					AssetID: asset.AssetID,
					Symbol:  asset.Symbol,
					Address: asset.Address,
					Native:  asset.Native,
					Balance: model.AmountInfo{
						AmountBaseUnits: raw.String(),
						AmountDecimal:   id.FormatDecimalCompat(raw.String(), asset.Decimals),
						Decimals:        asset.Decimals,
					},
				})
			}
			s.captureCommandDiagnostics(nil, status, false)
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), report, nil, cacheMetaBypass(), status, false)
		},
	}
	cmd.Flags().StringVar(&chainArg, "chain", "", "Chain identifier (CAIP-2, chain ID, or slug)")
	cmd.Flags().StringVar(&ownerArg, "owner", "", "Wallet address to read")
	cmd.Flags().StringVar(&assetsArg, "assets", "", "Assets to read (comma-separated; defaults to native plus the token registry)")
	cmd.Flags().StringVar(&rpcURL, "rpc-url", "", "RPC URL override for the selected chain")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// resolveBalanceAssets expands a CSV filter into parsed assets, or defaults
// to the native token plus every registered token on the chain.
func resolveBalanceAssets(chain id.Chain, assetsArg string) ([]id.Asset, error) {
	inputs := splitCSV(assetsArg)
	if len(inputs) == 0 {
		assets := []id.Asset{id.NativeAsset(chain)}
		for _, token := range id.KnownTokens(chain.CAIP2) {
			asset, err := id.ParseAsset(token.Address, chain)
			if err != nil {
				continue
			}
			assets = append(assets, asset)
		}
		return assets, nil
	}
	assets := make([]id.Asset, 0, len(inputs))
	for _, input := range inputs {
		asset, err := id.ParseAsset(input, chain)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func (s *runtimeState) newQuoteCommand() *cobra.Command {
	var route swapRouteArgs
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap without executing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			route.slippageSet = cmd.Flags().Changed("slippage-pct")
			req, err := s.buildSwapRequest(route)
			if err != nil {
				return err
			}
			providerName, err := s.engine.ResolveName(route.providerArg, req.FromChain.CAIP2 == req.ToChain.CAIP2)
			if err != nil {
				return err
			}
			cacheReq := map[string]any{
				"provider":   providerName,
				"from_chain": req.FromChain.CAIP2,
				"to_chain":   req.ToChain.CAIP2,
				"from_asset": req.FromAsset.AssetID,
				"to_asset":   req.ToAsset.AssetID,
				"trade_type": string(req.TradeType),
				"amount":     req.AmountBaseUnits,
				"sender":     strings.ToLower(strings.TrimSpace(req.Sender)),
			}
			key := cacheKey(trimRootPath(cmd.CommandPath()), cacheReq)
			return s.runCachedCommand(trimRootPath(cmd.CommandPath()), key, quoteCacheTTL, func(ctx context.Context) (any, []model.ProviderStatus, []string, bool, error) {
				start := time.Now()
				data, name, err := s.engine.Quote(ctx, providerName, req)
				status := []model.ProviderStatus{{Name: name, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				return data, status, nil, false, err
			})
		},
	}
	addSwapRouteFlags(cmd, &route)
	return cmd
}

type fetchFn func(ctx context.Context) (data any, providerStatus []model.ProviderStatus, warnings []string, partial bool, err error)

func (s *runtimeState) runCachedCommand(commandPath, key string, ttl time.Duration, fetch fetchFn) error {
	s.resetCommandDiagnostics()
	cacheStatus := cacheMetaMiss()
	warnings := []string{}
	var staleData any
	staleAvailable := false
	staleObservedAge := time.Duration(0)
	staleObservedAt := time.Time{}
	staleCacheStatus := cacheMetaMiss()

	if s.settings.CacheEnabled && s.cache != nil {
		cached, err := s.cache.Get(key)
		if err == nil && cached.Hit {
			entryStatus := model.CacheStatus{Status: "hit", AgeMS: cached.Age.Milliseconds(), Stale: cached.Stale}
			if !cached.Stale {
				var data any
				if err := json.Unmarshal(cached.Value, &data); err == nil {
					s.captureCommandDiagnostics(warnings, nil, false)
					return s.emitSuccess(commandPath, data, warnings, entryStatus, nil, false)
				}
			} else {
				var data any
				if err := json.Unmarshal(cached.Value, &data); err == nil {
					staleData = data
					staleAvailable = true
					staleObservedAge = cached.Age
					staleObservedAt = time.Now()
					staleCacheStatus = entryStatus
				}
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
	defer cancel()
	data, providerStatus, providerWarnings, partial, err := fetch(ctx)
	warnings = append(warnings, providerWarnings...)
	s.captureCommandDiagnostics(warnings, providerStatus, partial)
	if err != nil {
		if staleAvailable {
			if !staleFallbackAllowed(err) {
				return err
			}
			currentStaleAge := staleObservedAge
			if !staleObservedAt.IsZero() {
				currentStaleAge += time.Since(staleObservedAt)
			}
			staleCacheStatus.AgeMS = currentStaleAge.Milliseconds()
			if s.settings.NoStale {
				return clierr.Wrap(clierr.CodeStale, "fresh provider fetch failed and stale fallback is disabled (--no-stale)", err)
			}
			if staleExceedsBudget(currentStaleAge, ttl, s.settings.MaxStale) {
				return clierr.Wrap(clierr.CodeStale, "fresh provider fetch failed and cached data exceeded stale budget", err)
			}
			warnings = append(warnings, "provider fetch failed; serving stale data within max-stale budget")
			s.captureCommandDiagnostics(warnings, providerStatus, false)
			return s.emitSuccess(commandPath, staleData, warnings, staleCacheStatus, providerStatus, false)
		}
		return err
	}

	if partial && s.settings.Strict {
		s.captureCommandDiagnostics(warnings, providerStatus, true)
		return clierr.New(clierr.CodePartialStrict, "partial results returned in strict mode")
	}

	if s.settings.CacheEnabled && s.cache != nil {
		if payload, err := json.Marshal(data); err == nil {
			_ = s.cache.Set(key, payload, ttl)
			cacheStatus = model.CacheStatus{Status: "write", AgeMS: 0, Stale: false}
		}
	}

	s.captureCommandDiagnostics(warnings, providerStatus, partial)
	return s.emitSuccess(commandPath, data, warnings, cacheStatus, providerStatus, partial)
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus, providers []model.ProviderStatus, partial bool) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Cache:     cacheStatus,
			Partial:   partial,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string, providers []model.ProviderStatus, partial bool) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		typ = cErr.Code.TypeLabel()
	}

	rec := clierr.Classify(err)
	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:        code,
			Type:        typ,
			Message:     message,
			Category:    string(rec.Category),
			Kind:        string(rec.Kind),
			Recoverable: rec.Recoverable,
			Action:      rec.Action,
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Cache:     cacheMetaBypass(),
			Partial:   partial,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func cacheKey(commandPath string, req any) string {
	buf, _ := json.Marshal(req)
	sum := sha256.Sum256(append([]byte(commandPath+"|"), buf...))
	return hex.EncodeToString(sum[:])
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		norm := strings.ToLower(strings.TrimSpace(part))
		if norm != "" {
			out = append(out, norm)
		}
	}
	return out
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func statusFromErr(err error) string {
	if err == nil {
		return "ok"
	}
	if cErr, ok := clierr.As(err); ok {
		switch cErr.Code {
		case clierr.CodeAuth:
			return "auth_error"
		case clierr.CodeRateLimited:
			return "rate_limited"
		case clierr.CodeUnavailable:
			return "unavailable"
		default:
			return "error"
		}
	}
	return "error"
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass", AgeMS: 0, Stale: false}
}

func cacheMetaMiss() model.CacheStatus {
	return model.CacheStatus{Status: "miss", AgeMS: 0, Stale: false}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func staleExceedsBudget(age, ttl, maxStale time.Duration) bool {
	if age <= ttl {
		return false
	}
	if maxStale < 0 {
		return false
	}
	return age > ttl+maxStale
}

func staleFallbackAllowed(err error) bool {
	cErr, ok := clierr.As(err)
	if !ok {
		return false
	}
	return cErr.Code == clierr.CodeUnavailable || cErr.Code == clierr.CodeRateLimited
}

// shouldOpenCache limits cache opening to the commands whose payloads are
// actually cacheable. Execution commands hold the action store instead and
// must never contend on the cache lock.
func shouldOpenCache(commandPath string) bool {
	path := normalizeCommandPath(commandPath)
	if shouldOpenActionStore(path) {
		return false
	}
	switch path {
	case "", "version", "schema", "providers", "providers list", "chains", "balances":
		return false
	default:
		return true
	}
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}

func (s *runtimeState) resetCommandDiagnostics() {
	s.lastWarnings = nil
	s.lastProviders = nil
	s.lastPartial = false
}

func (s *runtimeState) captureCommandDiagnostics(warnings []string, providers []model.ProviderStatus, partial bool) {
	if len(warnings) == 0 {
		s.lastWarnings = nil
	} else {
		s.lastWarnings = append([]string(nil), warnings...)
	}
	if len(providers) == 0 {
		s.lastProviders = nil
	} else {
		s.lastProviders = append([]model.ProviderStatus(nil), providers...)
	}
	s.lastPartial = partial
}
