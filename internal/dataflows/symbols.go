package dataflows

import (
	"fmt"
	"strings"
)

// DefaultIndices are the index codes recognised without a suffix.
var DefaultIndices = []string{
	"000300.SH", // CSI 300
	"000905.SH", // CSI 500
	"000016.SH", // SSE 50
	"399001.SZ", // SZSE Component
	"399006.SZ", // ChiNext
}

// ValidateSymbol checks if a symbol has a usable format
func ValidateSymbol(symbol string) error {
	symbol = NormalizeSymbol(symbol)
	if len(symbol) == 0 {
		return fmt.Errorf("symbol cannot be empty: %w", ErrInvalidSymbol)
	}
	if len(symbol) > 12 {
		return fmt.Errorf("symbol too long: %s: %w", symbol, ErrInvalidSymbol)
	}
	return nil
}

// NormalizeSymbol converts symbol to standard format
func NormalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}

// Resolver turns user-facing identifiers into provider codes.
type Resolver struct {
	indices map[string]string // bare and full code -> full index code
}

func NewResolver(indices []string) *Resolver {
	r := &Resolver{indices: make(map[string]string, len(indices)*2)}
	for _, idx := range indices {
		full := NormalizeSymbol(idx)
		r.indices[full] = full
		if bare, _, ok := strings.Cut(full, "."); ok {
			r.indices[bare] = full
		}
	}
	return r
}

// Resolve applies the exchange suffix rules for Chinese markets:
// 6xxxxx is Shanghai, 0xxxxx/3xxxxx is Shenzhen, 4-5 digit codes are
// Hong Kong (zero padded to five digits) and alphabetic tickers are US.
// Index codes must be registered with the resolver.
func (r *Resolver) Resolve(symbol string) (Instrument, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return Instrument{}, err
	}
	symbol = NormalizeSymbol(symbol)

	if full, ok := r.indices[symbol]; ok {
		return Instrument{Code: full, Market: MarketIndex}, nil
	}

	if base, suffix, ok := strings.Cut(symbol, "."); ok {
		switch suffix {
		case "SH", "SZ", "BJ":
			return Instrument{Code: symbol, Market: MarketAShare}, nil
		case "HK":
			if isDigits(base) {
				return Instrument{Code: padHK(base) + ".HK", Market: MarketHK}, nil
			}
		case "US":
			return Instrument{Code: base, Market: MarketUS}, nil
		}
		return Instrument{}, fmt.Errorf("unknown exchange suffix in %s: %w", symbol, ErrInvalidSymbol)
	}

	if isDigits(symbol) {
		switch {
		case len(symbol) == 6 && symbol[0] == '6':
			return Instrument{Code: symbol + ".SH", Market: MarketAShare}, nil
		case len(symbol) == 6 && (symbol[0] == '0' || symbol[0] == '3'):
			return Instrument{Code: symbol + ".SZ", Market: MarketAShare}, nil
		case len(symbol) == 6:
			return Instrument{Code: symbol + ".SH", Market: MarketAShare}, nil
		case len(symbol) >= 1 && len(symbol) <= 5:
			return Instrument{Code: padHK(symbol) + ".HK", Market: MarketHK}, nil
		}
		return Instrument{}, fmt.Errorf("unrecognised numeric code %s: %w", symbol, ErrInvalidSymbol)
	}

	return Instrument{Code: symbol, Market: MarketUS}, nil
}

func padHK(code string) string {
	if len(code) >= 5 {
		return code
	}
	return strings.Repeat("0", 5-len(code)) + code
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
