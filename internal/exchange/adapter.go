package exchange

import (
	"context"
	"errors"

	"github.com/Juhan1212/karbit-sub002/internal/model"
)

// Typed errors for the adapter boundary. Callers distinguish them with
// errors.Is; adapters wrap them with exchange-specific detail.
var (
	// ErrUnsupportedExchange is returned by the factory for identifiers
	// outside the recognized set.
	ErrUnsupportedExchange = errors.New("unsupported exchange")

	// ErrSymbolNotFound is returned when an exchange has no market for
	// the requested symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrUpstreamUnavailable covers timeouts, connection failures and
	// 5xx responses from an exchange.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrAuthFailed marks invalid-key/signature failures on
	// credentialed calls.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotSupported is returned for capabilities an exchange does not
	// offer (e.g. position info on a spot-only exchange).
	ErrNotSupported = errors.New("operation not supported")

	// ErrBadInterval is returned for candle intervals the exchange
	// cannot serve.
	ErrBadInterval = errors.New("unsupported interval")
)

// Adapter is the per-exchange market-data/account capability contract.
// Each adapter owns exactly one base URL and at most one credential set,
// performs no caching and no retry of its own, and must return within a
// bounded time (its HTTP client enforces the upstream timeout).
type Adapter interface {
	// Name returns the canonical lowercase exchange identifier.
	Name() string

	// Ticker returns the current price for a symbol.
	Ticker(ctx context.Context, symbol string) (model.TickerSnapshot, error)

	// Candles returns a time-ordered (ascending) candle series ending at
	// or before the given epoch-millis timestamp. to == 0 means "now".
	Candles(ctx context.Context, symbol, interval string, to int64) ([]model.Candle, error)

	// Balance returns account balances, reporting exchange-side failures
	// in-band via BalanceResult.Error so callers can surface
	// exchange-specific diagnostics. Requires credentials.
	Balance(ctx context.Context) (model.BalanceResult, error)

	// PositionInfo returns the open futures position for a symbol.
	// Foreign exchanges only; spot exchanges return ErrNotSupported.
	PositionInfo(ctx context.Context, symbol string) (model.PositionInfo, error)
}

// CredentialsProvider supplies decrypted exchange credentials for a
// user. Implemented by the account subsystem; consumed here only at the
// boundary of credentialed adapter construction.
type CredentialsProvider interface {
	Credentials(ctx context.Context, userID, exchangeID string) (*model.Credentials, error)
}

// domesticExchanges is the fixed domestic (KRW spot) exchange set used
// to partition requested exchanges into market groups.
var domesticExchanges = map[string]bool{
	ExchangeUpbit:   true,
	ExchangeBithumb: true,
}

// IsDomestic reports whether a canonical exchange identifier belongs to
// the domestic market group.
func IsDomestic(id string) bool {
	return domesticExchanges[id]
}
