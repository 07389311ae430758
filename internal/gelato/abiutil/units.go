package abiutil

import (
	"fmt"
	"math/big"
	"strings"

	xerrors "gelato-runner/internal/errors"
)

// ParseUnits converts a decimal amount such as "1.5" into base units with
// the given number of decimals. More fractional digits than decimals is an
// error rather than a silent truncation.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("金额 %q 超过 %d 位小数", amount, decimals))
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok || n.Sign() < 0 || strings.ContainsAny(digits, "+-") {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("无效金额 %q", amount))
	}
	return n, nil
}

// MustParseUnits is ParseUnits for constants.
func MustParseUnits(amount string, decimals int) *big.Int {
	n, err := ParseUnits(amount, decimals)
	if err != nil {
		panic(err)
	}
	return n
}

// FormatUnits renders base units as a decimal string without trailing zeros.
func FormatUnits(n *big.Int, decimals int) string {
	if n == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(n)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}
	s := abs.String()
	if decimals <= 0 {
		return sign + s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
	if frac == "" {
		return sign + whole
	}
	return sign + whole + "." + frac
}

// Ether and Gwei are shorthands for the two units the commands deal in.
func Ether(amount string) (*big.Int, error) { return ParseUnits(amount, 18) }
func Gwei(amount string) (*big.Int, error)  { return ParseUnits(amount, 9) }
