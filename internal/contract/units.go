package contract

import (
	"fmt"
	"math/big"
	"strings"
)

// TokenDecimals is the number of decimal places of the stablecoin the
// lending contract denominates amounts in.
const TokenDecimals = 8

var unitFactor = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)

// ToSmallestUnit converts a human-readable decimal amount ("123.45") into the
// token's smallest unit. Negative amounts and more than TokenDecimals
// fractional digits are rejected.
func ToSmallestUnit(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(amount, "-") {
		return nil, fmt.Errorf("negative amount %q", amount)
	}

	whole, frac := amount, ""
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		whole, frac = amount[:i], amount[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > TokenDecimals {
		return nil, fmt.Errorf("amount %q exceeds %d decimal places", amount, TokenDecimals)
	}
	frac += strings.Repeat("0", TokenDecimals-len(frac))

	n, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	return n, nil
}

// FromSmallestUnit converts a smallest-unit amount into a human-readable
// decimal string with trailing zeros trimmed.
func FromSmallestUnit(n *big.Int) string {
	if n == nil {
		return "0"
	}

	sign := ""
	abs := new(big.Int).Abs(n)
	if n.Sign() < 0 {
		sign = "-"
	}

	quo, rem := new(big.Int).QuoRem(abs, unitFactor, new(big.Int))
	if rem.Sign() == 0 {
		return sign + quo.String()
	}

	frac := fmt.Sprintf("%0*s", TokenDecimals, rem.String())
	frac = strings.TrimRight(frac, "0")
	return sign + quo.String() + "." + frac
}
