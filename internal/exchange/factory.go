package exchange

import (
	"fmt"
	"strings"

	"github.com/Juhan1212/karbit-sub002/internal/model"
)

// Canonical exchange identifiers.
const (
	ExchangeUpbit   = "upbit"
	ExchangeBithumb = "bithumb"
	ExchangeBinance = "binance"
	ExchangeBybit   = "bybit"
	ExchangeOKX     = "okx"
)

// synonyms maps accepted spelling variants (Korean-localized names,
// case variants are handled by lowercasing first) onto canonical
// identifiers.
var synonyms = map[string]string{
	"upbit":   ExchangeUpbit,
	"업비트":     ExchangeUpbit,
	"bithumb": ExchangeBithumb,
	"빗썸":      ExchangeBithumb,
	"binance": ExchangeBinance,
	"바이낸스":    ExchangeBinance,
	"bybit":   ExchangeBybit,
	"바이비트":    ExchangeBybit,
	"okx":     ExchangeOKX,
	"오케이엑스":   ExchangeOKX,
}

// Normalize resolves an exchange identifier (any accepted spelling) to
// its canonical form. Unrecognized identifiers return
// ErrUnsupportedExchange.
func Normalize(id string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	canonical, ok := synonyms[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExchange, id)
	}
	return canonical, nil
}

// NewAdapter builds the adapter for an exchange identifier. Credentials
// may be nil for public (market data) use. Identifiers outside the
// recognized set always fail with ErrUnsupportedExchange; call sites
// that want to skip unknown exchanges catch-and-skip explicitly.
func NewAdapter(id string, creds *model.Credentials) (Adapter, error) {
	canonical, err := Normalize(id)
	if err != nil {
		return nil, err
	}

	switch canonical {
	case ExchangeUpbit:
		return newUpbit(creds), nil
	case ExchangeBithumb:
		return newBithumb(creds), nil
	case ExchangeBinance:
		return newBinance(creds), nil
	case ExchangeBybit:
		return newBybit(creds), nil
	case ExchangeOKX:
		return newOKX(creds), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedExchange, id)
}
