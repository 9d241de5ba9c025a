package exec

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRoundPrice(t *testing.T) {
	cases := []struct {
		name       string
		px         string
		maxDec, sz int
		want       string
	}{
		{name: "above 100k is integer", px: "150000.4", maxDec: PerpMaxDecimals, sz: 5, want: "150000"},
		{name: "above 100k rounds half up", px: "123456.5", maxDec: PerpMaxDecimals, sz: 0, want: "123457"},
		{name: "small price unchanged", px: "0.0012345", maxDec: SpotMaxDecimals, sz: 0, want: "0.0012345"},
		{name: "five sig figs", px: "23.456789", maxDec: PerpMaxDecimals, sz: 2, want: "23.457"},
		{name: "decimal cap", px: "1.23456", maxDec: PerpMaxDecimals, sz: 4, want: "1.23"},
		{name: "cap never negative", px: "12.345", maxDec: PerpMaxDecimals, sz: 8, want: "12"},
		{name: "exact 100k keeps sig fig path", px: "100000", maxDec: PerpMaxDecimals, sz: 0, want: "100000"},
	}
	for _, tc := range cases {
		got := RoundPrice(dec(tc.px), tc.maxDec, tc.sz)
		if !got.Equal(dec(tc.want)) {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestTruncateSizeNeverRoundsUp(t *testing.T) {
	got := TruncateSize(dec("1.23456789"), 4)
	if !got.Equal(dec("1.2345")) {
		t.Fatalf("expected 1.2345, got %s", got)
	}
	if rounded := dec("1.23456789").Round(4); !rounded.Equal(dec("1.2346")) {
		t.Fatalf("rounding control case changed: %s", rounded)
	}
	if got := TruncateSize(dec("7.99"), 0); !got.Equal(dec("7")) {
		t.Fatalf("expected 7, got %s", got)
	}
}

func TestSlippagePrice(t *testing.T) {
	slip := dec("0.01")
	if got := SlippagePrice(dec("100"), true, slip); !got.Equal(dec("101")) {
		t.Fatalf("buy: got %s", got)
	}
	if got := SlippagePrice(dec("100"), false, slip); !got.Equal(dec("99")) {
		t.Fatalf("sell: got %s", got)
	}
}
