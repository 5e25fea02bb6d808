package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestBuySignal(t *testing.T) {
	ref := dec("100")
	ratio := dec("0.95")

	limit, ok := buySignal(dec("95"), ref, ratio)
	if !ok {
		t.Fatal("expected buy at limit price")
	}
	if !limit.Equal(dec("95")) {
		t.Errorf("limit = %s, want 95", limit)
	}

	if _, ok := buySignal(dec("95.01"), ref, ratio); ok {
		t.Error("expected no buy above limit")
	}
	if _, ok := buySignal(dec("94"), ref, ratio); !ok {
		t.Error("expected buy below limit")
	}
	if _, ok := buySignal(dec("95"), decimal.Zero, ratio); ok {
		t.Error("expected no buy without reference price")
	}
	if _, ok := buySignal(decimal.Zero, ref, ratio); ok {
		t.Error("expected no buy for zero last price")
	}
}

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"12345.678", "12345"},
		{"100.5", "100"},
		{"99.555", "99.55"},
		{"1.23456", "1.23"},
		{"0.5", "0.5"},
		{"0.5678", "0.567"},
		{"0.0234", "0.0234"},
		{"0.0005678", "0.000567"},
		{"0", "0"},
	}
	for _, c := range cases {
		got := formatPrice(dec(c.in))
		if !got.Equal(dec(c.want)) {
			t.Errorf("formatPrice(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestSizeFor(t *testing.T) {
	size := sizeFor(dec("100"), dec("95"))
	if !size.Equal(dec("1.05")) {
		t.Errorf("size = %s, want 1.05", size)
	}
	if !sizeFor(dec("100"), decimal.Zero).IsZero() {
		t.Error("expected zero size for zero price")
	}
}

func TestNextHourClose(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 25, 42, 0, time.UTC)
	want := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	if got := nextHourClose(now); !got.Equal(want) {
		t.Errorf("nextHourClose = %v, want %v", got, want)
	}

	onTheHour := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	want = time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	if got := nextHourClose(onTheHour); !got.Equal(want) {
		t.Errorf("nextHourClose on the hour = %v, want %v", got, want)
	}
}
