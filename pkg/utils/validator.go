package utils

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSymbol     = errors.New("invalid symbol format")
	ErrInvalidSpread     = errors.New("spread must be in (0, 100]")
	ErrInvalidVolume     = errors.New("volume must be in (0, 1e9]")
	ErrInvalidNOrders    = errors.New("order count must be in [1, 100]")
	ErrInvalidStopLoss   = errors.New("stop loss must be in (0, 100]")
	ErrInvalidLeverage   = errors.New("leverage must be in [1, 100]")
	ErrInvalidPercentage = errors.New("percentage must be in [0, 100]")
	ErrInvalidPassphrase = errors.New("passphrase too long")
)

// ValidateSymbol checks that symbol looks like a trading pair identity:
// 2-20 ASCII letters/digits, optionally separated by one of -, _, /.
func ValidateSymbol(symbol string) error {
	if len(symbol) < 2 || len(symbol) > 20 {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	for _, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '/':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
		}
	}
	return nil
}

// IsValidSymbol is the boolean form of ValidateSymbol.
func IsValidSymbol(symbol string) bool { return ValidateSymbol(symbol) == nil }

// NormalizeSymbol strips separators and upper-cases a symbol, so "btc-usd",
// "BTC_USD" and "btc/usd" all compare equal.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	s = strings.NewReplacer("-", "", "_", "", "/", "").Replace(s)
	return s
}

var knownQuotes = []string{"USDT", "USDC", "USD", "BTC", "ETH"}

// ExtractBaseCurrency returns the base leg of a normalized symbol, e.g.
// "BTC" from "BTCUSDT" or "BTC-USD".
func ExtractBaseCurrency(symbol string) string {
	norm := NormalizeSymbol(symbol)
	for _, q := range knownQuotes {
		if strings.HasSuffix(norm, q) && len(norm) > len(q) {
			return norm[:len(norm)-len(q)]
		}
	}
	return norm
}

// ExtractQuoteCurrency returns the quote leg of a normalized symbol, e.g.
// "USDT" from "BTCUSDT" or "BTC-USDT".
func ExtractQuoteCurrency(symbol string) string {
	norm := NormalizeSymbol(symbol)
	for _, q := range knownQuotes {
		if strings.HasSuffix(norm, q) && len(norm) > len(q) {
			return q
		}
	}
	return ""
}

// ValidateSpread checks a spread threshold expressed as a percentage,
// e.g. MeanReversion's entry/exit bands or Grid's level spacing.
func ValidateSpread(spread float64) error {
	if spread <= 0 || spread > 100 {
		return fmt.Errorf("%w: got %v", ErrInvalidSpread, spread)
	}
	return nil
}

// ValidateVolume checks an order or position size expressed in tokens.
func ValidateVolume(volume float64) error {
	if volume <= 0 || volume > 1e9 {
		return fmt.Errorf("%w: got %v", ErrInvalidVolume, volume)
	}
	return nil
}

// ValidateNOrders checks a bounded order count, e.g. Grid's level count or
// Institutional's volume-split parts.
func ValidateNOrders(n int) error {
	if n < 1 || n > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidNOrders, n)
	}
	return nil
}

// ValidateStopLoss checks a stop-loss distance expressed as a percentage.
func ValidateStopLoss(sl float64) error {
	if sl <= 0 || sl > 100 {
		return fmt.Errorf("%w: got %v", ErrInvalidStopLoss, sl)
	}
	return nil
}

// ValidateLeverage checks a position's requested leverage multiple.
func ValidateLeverage(leverage int) error {
	if leverage < 1 || leverage > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidLeverage, leverage)
	}
	return nil
}

// ValidatePercentage checks a generic [0, 100] percentage field.
func ValidatePercentage(pct float64) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("%w: got %v", ErrInvalidPercentage, pct)
	}
	return nil
}

// ValidateKeystorePassphrase checks an addressbook encryption passphrase. An
// empty passphrase is allowed (unencrypted keystore, dev/test scenarios
// only); anything over 72 bytes is rejected since that's bcrypt's input cap.
func ValidateKeystorePassphrase(passphrase string) error {
	if len(passphrase) > 72 {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidPassphrase, len(passphrase))
	}
	return nil
}

// ValidationErrors accumulates field-scoped validation failures so a scenario
// loader can report every problem at once instead of failing on the first.
type ValidationErrors []string

// Add appends a formatted "field: message" entry.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, fmt.Sprintf("%s: %s", field, message))
}

// AddError appends err under field, unless err is nil.
func (e *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	e.Add(field, err.Error())
}

// HasErrors reports whether any entries were accumulated.
func (e ValidationErrors) HasErrors() bool { return len(e) > 0 }

func (e ValidationErrors) Error() string {
	return strings.Join(e, "; ")
}
