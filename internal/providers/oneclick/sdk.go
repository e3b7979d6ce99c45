package oneclick

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/defuse-protocol/one-click-sdk-go"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
)

// sdkClient implements venueAPI over the generated 1Click client. The
// portal JWT rides on the request context, which is how the generated
// code expects bearer auth to arrive.
type sdkClient struct {
	api *sdk.APIClient
	jwt string
}

func newSDKClient(jwt string) *sdkClient {
	return &sdkClient{
		api: sdk.NewAPIClient(sdk.NewConfiguration()),
		jwt: strings.TrimSpace(jwt),
	}
}

func (s *sdkClient) authCtx(ctx context.Context) context.Context {
	if s.jwt == "" {
		return ctx
	}
	return context.WithValue(ctx, sdk.ContextAccessToken, s.jwt)
}

func (s *sdkClient) Tokens(ctx context.Context) ([]venueToken, error) {
	resp, httpResp, err := s.api.OneClickAPI.GetTokens(s.authCtx(ctx)).Execute()
	if err != nil {
		return nil, venueError("fetch oneclick token inventory", httpResp, err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("oneclick token inventory returned status %d", httpResp.StatusCode))
	}
	out := make([]venueToken, 0, len(resp))
	for _, t := range resp {
		out = append(out, venueToken{
			AssetID:  t.GetAssetId(),
			Symbol:   t.GetSymbol(),
			Chain:    t.GetBlockchain(),
			Address:  t.GetContractAddress(),
			Decimals: int(t.GetDecimals()),
			PriceUSD: float64(t.GetPrice()),
		})
	}
	return out, nil
}

func (s *sdkClient) RequestQuote(ctx context.Context, params quoteParams) (venueQuote, error) {
	req := sdk.NewQuoteRequest(
		params.Dry,
		"EXACT_INPUT",           // swapType
		float32(params.SlippageBps), // slippageTolerance in basis points
		params.OriginAsset,      // originAsset
		"ORIGIN_CHAIN",          // depositType
		params.DestinationAsset, // destinationAsset
		params.AmountBaseUnits,  // amount in base units
		params.RefundTo,         // refundTo
		"ORIGIN_CHAIN",          // refundType
		params.Recipient,        // recipient
		"DESTINATION_CHAIN",     // recipientType
		params.Deadline,         // deadline
	)
	resp, httpResp, err := s.api.OneClickAPI.GetQuote(s.authCtx(ctx)).QuoteRequest(*req).Execute()
	if err != nil {
		return venueQuote{}, venueError("request oneclick quote", httpResp, err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return venueQuote{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("oneclick quote returned status %d", httpResp.StatusCode))
	}
	quote := resp.GetQuote()
	return venueQuote{
		DepositAddress: quote.GetDepositAddress(),
		AmountIn:       quote.GetAmountIn(),
		AmountOut:      quote.GetAmountOut(),
		MinAmountOut:   quote.GetMinAmountOut(),
		TimeEstimateS:  int64(quote.GetTimeEstimate()),
	}, nil
}

func (s *sdkClient) SubmitDeposit(ctx context.Context, depositAddress, txHash string) error {
	req := sdk.NewSubmitDepositTxRequest(depositAddress, txHash)
	_, httpResp, err := s.api.OneClickAPI.SubmitDepositTx(s.authCtx(ctx)).SubmitDepositTxRequest(*req).Execute()
	if err != nil {
		return venueError("register oneclick deposit", httpResp, err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("oneclick deposit registration returned status %d", httpResp.StatusCode))
	}
	return nil
}

func (s *sdkClient) ExecutionStatus(ctx context.Context, depositAddress string) (venueStatus, error) {
	resp, httpResp, err := s.api.OneClickAPI.GetExecutionStatus(s.authCtx(ctx)).DepositAddress(depositAddress).Execute()
	if err != nil {
		return venueStatus{}, venueError("fetch oneclick settlement status", httpResp, err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return venueStatus{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("oneclick settlement status returned status %d", httpResp.StatusCode))
	}
	out := venueStatus{
		Status:    resp.GetStatus(),
		UpdatedAt: resp.GetUpdatedAt(),
	}
	details := resp.GetSwapDetails()
	out.AmountIn = details.GetAmountIn()
	out.AmountOut = details.GetAmountOut()
	for _, tx := range details.GetOriginChainTxHashes() {
		if hash := strings.TrimSpace(tx.GetHash()); hash != "" {
			out.DepositTxHash = hash
			break
		}
	}
	for _, tx := range details.GetDestinationChainTxHashes() {
		out.FillTxHashes = append(out.FillTxHashes, tx.GetHash())
	}
	return out, nil
}

// venueError maps the generated client's failures onto engine error
// codes using the HTTP status when one is available.
func venueError(op string, httpResp *http.Response, err error) error {
	if httpResp == nil {
		return clierr.Wrap(clierr.CodeUnavailable, op, err)
	}
	switch httpResp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return clierr.Wrap(clierr.CodeAuth, op, err)
	case http.StatusTooManyRequests:
		return clierr.Wrap(clierr.CodeRateLimited, op, err)
	default:
		return clierr.Wrap(clierr.CodeUnavailable, op, err)
	}
}
