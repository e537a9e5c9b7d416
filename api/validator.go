package api

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Validator handles validation logic separate from HTTP concerns
type Validator struct {
	supportedIntervals map[string]bool
	symbolRegex        *regexp.Regexp
	channelRegex       *regexp.Regexp
}

var (
	validatorInstance *Validator
	validatorOnce     sync.Once
)

// GetValidator returns the singleton validator instance
func GetValidator() *Validator {
	validatorOnce.Do(func() {
		validatorInstance = &Validator{
			supportedIntervals: map[string]bool{
				"1m":  true,
				"3m":  true,
				"5m":  true,
				"15m": true,
				"30m": true,
				"1h":  true,
				"4h":  true,
				"1d":  true,
			},
			// Base-asset symbols: BTC, ETH, DOGE, ...
			symbolRegex: regexp.MustCompile(`^[A-Z0-9]{2,10}$`),
			// Broker channel names: premium:ticks, premium:ticks:btc, ...
			channelRegex: regexp.MustCompile(`^[a-zA-Z0-9:_-]{1,64}$`),
		}
	})
	return validatorInstance
}

// ValidateKlineRequest validates and sanitizes the parameters of a
// candle aggregation request. An empty exchange list is valid (the
// reference series is still computed); a missing symbol is not.
func (v *Validator) ValidateKlineRequest(exchanges, symbol, interval, toStr string) ([]string, string, string, int64, error) {
	cleanExchanges := v.splitExchanges(exchanges)

	cleanSymbol, err := v.validateSymbol(symbol)
	if err != nil {
		return nil, "", "", 0, err
	}

	cleanInterval := v.sanitizeInput(interval)
	if cleanInterval == "" {
		cleanInterval = "1m"
	}
	if err := v.validateInterval(cleanInterval); err != nil {
		return nil, "", "", 0, err
	}

	to, err := v.validateTimestamp(toStr)
	if err != nil {
		return nil, "", "", 0, err
	}

	return cleanExchanges, cleanSymbol, cleanInterval, to, nil
}

// ValidateTickerRequest validates and sanitizes the parameters of a
// per-exchange ticker request.
func (v *Validator) ValidateTickerRequest(exchanges, symbol string) ([]string, string, error) {
	cleanExchanges := v.splitExchanges(exchanges)
	if len(cleanExchanges) == 0 {
		return nil, "", errors.New("exchanges parameter is required")
	}

	cleanSymbol, err := v.validateSymbol(symbol)
	if err != nil {
		return nil, "", err
	}

	return cleanExchanges, cleanSymbol, nil
}

// ValidateChannel validates an optional stream channel name. Empty
// means "use the default channel".
func (v *Validator) ValidateChannel(channel string) (string, error) {
	clean := v.sanitizeInput(channel)
	if clean == "" {
		return "", nil
	}
	if !v.channelRegex.MatchString(clean) {
		return "", errors.New("channel may contain only letters, digits, ':', '_' and '-' (max 64 characters)")
	}
	return clean, nil
}

// splitExchanges turns the comma-separated exchange list into sanitized
// identifiers, dropping empties. Synonym resolution (Korean/upper/lower
// spellings) is the adapter factory's job, not validation's.
func (v *Validator) splitExchanges(exchanges string) []string {
	parts := strings.Split(v.sanitizeInput(exchanges), ",")
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}
	return clean
}

// sanitizeInput removes potentially dangerous characters and trims whitespace
func (v *Validator) sanitizeInput(input string) string {
	// Trim whitespace
	input = strings.TrimSpace(input)

	// Remove null bytes and control characters
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.Map(func(r rune) rune {
		// Keep printable ASCII and common symbols, remove control chars
		if r < 32 && r != 9 && r != 10 && r != 13 { // Keep tab, LF, CR
			return -1 // Remove character
		}
		return r
	}, input)

	// Limit length to prevent DoS
	if len(input) > 200 {
		input = input[:200]
	}

	return input
}

// validateSymbol validates a base-asset symbol with input sanitization
func (v *Validator) validateSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(v.sanitizeInput(symbol))

	if symbol == "" {
		return "", errors.New("symbol parameter is required")
	}

	if !v.symbolRegex.MatchString(symbol) {
		return "", errors.New("symbol must be 2-10 characters and contain only letters and digits")
	}

	return symbol, nil
}

// validateInterval validates a time interval with input sanitization
func (v *Validator) validateInterval(interval string) error {
	interval = v.sanitizeInput(interval)

	if interval == "" {
		return errors.New("interval cannot be empty")
	}

	if !v.supportedIntervals[interval] {
		return fmt.Errorf("invalid interval '%s'. Supported values: 1m, 3m, 5m, 15m, 30m, 1h, 4h, 1d", interval)
	}

	return nil
}

// validateTimestamp validates the end-timestamp parameter. Zero or
// empty means "now".
func (v *Validator) validateTimestamp(toStr string) (int64, error) {
	toStr = v.sanitizeInput(toStr)
	if toStr == "" {
		return 0, nil
	}

	to, err := strconv.ParseInt(toStr, 10, 64)
	if err != nil {
		return 0, errors.New("to must be a valid epoch-millis timestamp")
	}
	if to < 0 {
		return 0, errors.New("to must not be negative")
	}
	return to, nil
}
