package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func writeLimitsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crypto_limits.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadLimits(t *testing.T) {
	path := writeLimitsFile(t, `{"cryptos": {
		"BTC-USDT": {"limit_percent": 95.0},
		"ETH-USDT": {"limit_percent": 92.5}
	}}`)

	l, err := LoadLimits(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	r, ok := l.Ratio("BTC-USDT")
	if !ok || !r.Equal(dec("0.95")) {
		t.Errorf("BTC ratio = %s, %v, want 0.95", r, ok)
	}
	r, ok = l.Ratio("ETH-USDT")
	if !ok || !r.Equal(dec("0.925")) {
		t.Errorf("ETH ratio = %s, %v, want 0.925", r, ok)
	}
	if _, ok := l.Ratio("DOGE-USDT"); ok {
		t.Error("unknown instrument should have no ratio")
	}
	if len(l.Instruments()) != 2 {
		t.Errorf("instruments = %d, want 2", len(l.Instruments()))
	}
}

func TestLoadLimitsBlacklist(t *testing.T) {
	path := writeLimitsFile(t, `{"cryptos": {
		"BTC-USDT": {"limit_percent": 95.0},
		"ETH-USDT": {"limit_percent": 92.5}
	}}`)

	l, err := LoadLimits(path, []string{"ETH-USDT"})
	if err != nil {
		t.Fatal(err)
	}

	// The blacklist acts through Ratio: no ratio means no buy.
	if _, ok := l.Ratio("ETH-USDT"); ok {
		t.Error("blacklisted instrument must not produce buy ratios")
	}
	if _, ok := l.Ratio("BTC-USDT"); !ok {
		t.Error("non-blacklisted instrument should keep its ratio")
	}
	// Still subscribed so open positions can be sold.
	if len(l.Instruments()) != 2 {
		t.Errorf("instruments = %d, want 2", len(l.Instruments()))
	}
}

func TestLoadLimitsRejectsBadInput(t *testing.T) {
	if _, err := LoadLimits(writeLimitsFile(t, `{"cryptos": {}}`), nil); err == nil {
		t.Error("expected error for empty limits")
	}
	if _, err := LoadLimits(writeLimitsFile(t, `{"cryptos": {"X-USDT": {"limit_percent": 0}}}`), nil); err == nil {
		t.Error("expected error for zero limit_percent")
	}
	if _, err := LoadLimits(writeLimitsFile(t, `not json`), nil); err == nil {
		t.Error("expected error for malformed file")
	}
	if _, err := LoadLimits(filepath.Join(t.TempDir(), "missing.json"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}
