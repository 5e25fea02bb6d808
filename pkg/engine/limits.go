package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// limitsFile mirrors the generated crypto-limits JSON:
//
//	{"cryptos": {"BTC-USDT": {"limit_percent": 95.0}, ...}}
type limitsFile struct {
	Cryptos map[string]struct {
		LimitPercent json.Number `json:"limit_percent"`
	} `json:"cryptos"`
}

// Limits holds per-instrument limit ratios (fraction of the reference price
// that triggers a buy) and the blacklist. Immutable after load.
type Limits struct {
	ratios    map[string]decimal.Decimal
	blacklist map[string]bool
}

var oneHundred = decimal.NewFromInt(100)

// LoadLimits reads the limits file and applies the blacklist from config.
func LoadLimits(path string, blacklist []string) (*Limits, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read limits file: %w", err)
	}

	var lf limitsFile
	if err := json.Unmarshal(raw, &lf); err != nil {
		return nil, fmt.Errorf("parse limits file: %w", err)
	}
	if len(lf.Cryptos) == 0 {
		return nil, fmt.Errorf("limits file %s has no instruments", path)
	}

	l := &Limits{
		ratios:    make(map[string]decimal.Decimal, len(lf.Cryptos)),
		blacklist: make(map[string]bool, len(blacklist)),
	}
	for instID, c := range lf.Cryptos {
		pct, err := decimal.NewFromString(c.LimitPercent.String())
		if err != nil {
			return nil, fmt.Errorf("instrument %s: bad limit_percent %q", instID, c.LimitPercent)
		}
		if !pct.IsPositive() {
			return nil, fmt.Errorf("instrument %s: limit_percent must be positive", instID)
		}
		l.ratios[instID] = pct.Div(oneHundred)
	}
	for _, instID := range blacklist {
		l.blacklist[instID] = true
	}
	return l, nil
}

// Ratio returns the limit ratio for an instrument; ok is false for unknown or
// blacklisted instruments, so their ticks never trigger buys.
func (l *Limits) Ratio(instID string) (decimal.Decimal, bool) {
	if l.blacklist[instID] {
		return decimal.Decimal{}, false
	}
	r, ok := l.ratios[instID]
	return r, ok
}

// Instruments lists every configured instrument, blacklisted ones included;
// streams still subscribe to them so open positions can be sold.
func (l *Limits) Instruments() []string {
	out := make([]string, 0, len(l.ratios))
	for instID := range l.ratios {
		out = append(out, instID)
	}
	return out
}
