package id

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// NormalizeAmount resolves the two mutually exclusive amount flags into
// canonical base-unit and display-decimal spellings. Exactly one of
// baseUnits or decimal must be set.
func NormalizeAmount(baseUnits, decimal string, decimals int) (string, string, error) {
	switch {
	case baseUnits != "" && decimal != "":
		return "", "", clierr.New(clierr.CodeUsage, "use either --amount or --amount-decimal, not both")
	case baseUnits == "" && decimal == "":
		return "", "", clierr.New(clierr.CodeUsage, "amount is required")
	case decimals < 0:
		return "", "", clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}

	if baseUnits != "" {
		n, err := ParseBaseUnits(baseUnits)
		if err != nil {
			return "", "", err
		}
		return n.String(), FormatDecimalCompat(n.String(), decimals), nil
	}

	base, err := decimalToBaseUnits(decimal, decimals)
	if err != nil {
		return "", "", err
	}
	return base, canonicalDecimal(decimal), nil
}

// ParseBaseUnits converts a base-unit integer string into a big.Int.
// All amount math in the engine runs on big.Int, never floats.
func ParseBaseUnits(value string) (*big.Int, error) {
	v := strings.TrimSpace(value)
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid base-unit amount: %s", value))
	}
	if n.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUsage, "amount must be non-negative")
	}
	return n, nil
}

// FormatDecimalCompat renders a base-unit integer string as a decimal
// display string, trimming trailing fractional zeros. Unparseable input
// renders as zero; these are display fields, not amounts the engine
// computes with.
func FormatDecimalCompat(baseUnits string, decimals int) string {
	n, ok := new(big.Int).SetString(strings.TrimSpace(baseUnits), 10)
	if !ok {
		return "0"
	}
	if decimals <= 0 {
		return n.String()
	}
	quo, rem := new(big.Int).QuoRem(n, pow10(decimals), new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%0*d", decimals, rem), "0")
	return quo.String() + "." + frac
}

func decimalToBaseUnits(decimal string, decimals int) (string, error) {
	if !decimalPattern.MatchString(decimal) {
		return "", clierr.New(clierr.CodeUsage, "--amount-decimal must be in decimal form like 1.23")
	}
	intPart, fracPart, _ := strings.Cut(decimal, ".")
	if len(fracPart) > decimals {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}

	// base = int * 10^decimals + frac * 10^(decimals - len(frac)).
	n, _ := new(big.Int).SetString(intPart, 10)
	n.Mul(n, pow10(decimals))
	if fracPart != "" {
		frac, _ := new(big.Int).SetString(fracPart, 10)
		n.Add(n, frac.Mul(frac, pow10(decimals-len(fracPart))))
	}
	return n.String(), nil
}

// canonicalDecimal strips leading integer zeros and trailing fractional
// zeros by round-tripping through base units at the input's own scale.
func canonicalDecimal(v string) string {
	fracLen := 0
	if i := strings.IndexByte(v, '.'); i >= 0 {
		fracLen = len(v) - i - 1
	}
	base, err := decimalToBaseUnits(v, fracLen)
	if err != nil {
		return v
	}
	return FormatDecimalCompat(base, fracLen)
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
