package errors

import "strings"

// Category names the subsystem a failure is attributed to.
type Category string

const (
	CategoryWallet      Category = "wallet"
	CategoryQuote       Category = "quote"
	CategoryTransaction Category = "transaction"
	CategoryNetwork     Category = "network"
	CategoryMonitor     Category = "monitor"
	CategoryUnknown     Category = "unknown"
)

// Kind is the user-facing failure taxonomy.
type Kind string

const (
	KindUserRejected          Kind = "user_rejected"
	KindNoRoute               Kind = "no_route"
	KindInsufficientLiquidity Kind = "insufficient_liquidity"
	KindInsufficientFunds     Kind = "insufficient_funds"
	KindSlippageExceeded      Kind = "slippage_exceeded"
	KindGasEstimationFailed   Kind = "gas_estimation_failed"
	KindMonitorTimeout        Kind = "monitor_timeout"
	KindNetworkTimeout        Kind = "network_timeout"
	KindUnknown               Kind = "unknown"
)

// Record is the classified, user-facing form of a failure. It is immutable
// once produced and is the only failure shape surfaced to callers.
type Record struct {
	Category    Category `json:"category"`
	Kind        Kind     `json:"kind"`
	Message     string   `json:"message"`
	Recoverable bool     `json:"recoverable"`
	Action      string   `json:"action,omitempty"`
	Cause       string   `json:"cause,omitempty"`
}

type phraseRule struct {
	category Category
	kind     Kind
	phrases  []string
}

// Rules are ordered: wallet phrases win over quote phrases, quote over
// transaction, transaction over network. First match decides.
var classifyRules = []phraseRule{
	{CategoryWallet, KindUserRejected, []string{
		"user rejected", "user denied", "rejected by user", "rejected the request", "request rejected",
	}},
	{CategoryWallet, KindInsufficientFunds, []string{
		"insufficient funds", "insufficient balance", "exceeds balance", "transfer amount exceeds",
	}},
	{CategoryWallet, KindUnknown, []string{
		"wallet not connected", "not connected", "no accounts",
	}},
	{CategoryQuote, KindNoRoute, []string{
		"no route", "route not found", "no pool", "pair not supported", "quote unavailable", "no quote",
	}},
	{CategoryQuote, KindInsufficientLiquidity, []string{
		"insufficient liquidity", "not enough liquidity", "liquidity too low",
	}},
	{CategoryQuote, KindNoRoute, []string{
		"amount too low", "amount too small", "below minimum", "minimum amount", "amount too high", "above maximum",
	}},
	{CategoryTransaction, KindSlippageExceeded, []string{
		"slippage", "too little received", "insufficient output amount", "return amount is not enough",
	}},
	{CategoryTransaction, KindGasEstimationFailed, []string{
		"cannot estimate gas", "gas estimation", "estimate gas", "gas required exceeds", "intrinsic gas",
	}},
	{CategoryTransaction, KindUnknown, []string{
		"nonce too low", "nonce too high", "replacement transaction", "already known",
		"execution reverted", "reverted", "transaction failed",
	}},
	{CategoryNetwork, KindNetworkTimeout, []string{
		"timeout", "timed out", "deadline exceeded",
		"connection refused", "connection reset", "no such host", "network is unreachable",
		"fetch failed", "unexpected eof",
	}},
}

var kindActions = map[Kind]string{
	KindUserRejected:          "approve the request in your wallet and try again",
	KindNoRoute:               "try a different token pair or amount",
	KindInsufficientLiquidity: "reduce the amount or try again later",
	KindInsufficientFunds:     "top up the input token balance",
	KindSlippageExceeded:      "increase the slippage tolerance and request a fresh quote",
	KindMonitorTimeout:        "the order may still settle; check its status again later",
}

// terminalKinds are never retried by the engine. They are still marked
// recoverable when the user can change something and try again.
var terminalKinds = map[Kind]bool{
	KindUserRejected:          true,
	KindNoRoute:               true,
	KindInsufficientLiquidity: true,
	KindInsufficientFunds:     true,
}

// Classify maps an error onto the failure taxonomy. Engine-typed monitor
// timeouts keep their kind; everything else is classified from the message.
func Classify(err error) Record {
	if err == nil {
		return Record{}
	}
	if cliErr, ok := As(err); ok && cliErr.Code == CodeActionTimeout {
		rec := Record{
			Category:    CategoryMonitor,
			Kind:        KindMonitorTimeout,
			Message:     cliErr.Message,
			Recoverable: true,
			Action:      kindActions[KindMonitorTimeout],
		}
		if cliErr.Cause != nil {
			rec.Cause = cliErr.Cause.Error()
		}
		return rec
	}
	rec := ClassifyMessage(err.Error())
	if cliErr, ok := As(err); ok && cliErr.Cause != nil {
		rec.Message = cliErr.Message
		rec.Cause = cliErr.Cause.Error()
	}
	return rec
}

// ClassifyMessage classifies a raw error message. Matching is
// case-insensitive substring search in rule order; the first hit wins and
// unmatched messages fall back to an unknown, recoverable record.
func ClassifyMessage(message string) Record {
	normalized := strings.ToLower(strings.TrimSpace(message))
	for _, rule := range classifyRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(normalized, phrase) {
				rec := Record{
					Category:    rule.category,
					Kind:        rule.kind,
					Message:     message,
					Recoverable: recoverableKind(rule.kind),
					Action:      kindActions[rule.kind],
				}
				if rule.category == CategoryWallet && rule.kind == KindUnknown {
					rec.Action = "connect a wallet before retrying"
				}
				return rec
			}
		}
	}
	return Record{
		Category:    CategoryUnknown,
		Kind:        KindUnknown,
		Message:     message,
		Recoverable: true,
	}
}

func recoverableKind(kind Kind) bool {
	switch kind {
	case KindNoRoute, KindInsufficientLiquidity:
		return false
	default:
		return true
	}
}

// Retryable reports whether the engine may retry the failed call under its
// backoff policy. Terminal taxonomy kinds and caller mistakes are not
// retried; transient provider and network failures are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if cliErr, ok := As(err); ok {
		switch cliErr.Code {
		case CodeUsage, CodeAuth, CodeUnsupported, CodeBlocked, CodeSigner, CodeActionPlan, CodeActionReverted:
			return false
		}
	}
	rec := Classify(err)
	if terminalKinds[rec.Kind] {
		return false
	}
	if rec.Category == CategoryWallet {
		return false
	}
	return true
}
