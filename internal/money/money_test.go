package money

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in       string
		decimals int
		want     int64
		ok       bool
	}{
		{"", 6, 0, true},
		{"0", 6, 0, true},
		{"1.5", 6, 1500000, true},
		{"10", 6, 10000000, true},
		{"0.000001", 6, 1, true},
		{"2.5", 9, 2500000000, true},
		{"1.9999999999", 9, 1999999999, true}, // truncated, not rounded
		{"150.00", 2, 15000, true},
		{"-1", 6, 0, false},
		{"1.2.3", 6, 0, false},
		{"abc", 6, 0, false},
	}

	for _, tt := range tests {
		got, ok := Parse(tt.in, tt.decimals)
		assert.Equal(t, tt.ok, ok, "Parse(%q, %d)", tt.in, tt.decimals)
		if tt.ok {
			assert.Equal(t, tt.want, got.Int64(), "Parse(%q, %d)", tt.in, tt.decimals)
		}
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.500000", Format(big.NewInt(1500000), 6))
	assert.Equal(t, "0.000000", Format(nil, 6))
	assert.Equal(t, "0.000001", Format(big.NewInt(1), 6))
	assert.Equal(t, "-1.500000", Format(big.NewInt(-1500000), 6))
	assert.Equal(t, "2.500000000", Format(big.NewInt(2500000000), 9))
}

func TestParseFormatRoundTrip(t *testing.T) {
	v, ok := ParseUSDT("123.456789")
	require.True(t, ok)
	assert.Equal(t, "123.456789", FormatUSDT(v))

	n, ok := ParseTON("0.05")
	require.True(t, ok)
	assert.Equal(t, "0.050000000", FormatTON(n))
}

func TestConvertDecimals(t *testing.T) {
	// 1.5 TON in nanoton -> 6-decimal units
	got := ConvertDecimals(big.NewInt(1500000000), 9, 6)
	assert.Equal(t, int64(1500000), got.Int64())

	// back up
	got = ConvertDecimals(big.NewInt(1500000), 6, 9)
	assert.Equal(t, int64(1500000000), got.Int64())
}

func TestMulRate(t *testing.T) {
	// 2 TON at 5.25 USDT/TON = 10.5 USDT
	ton, _ := ParseTON("2")
	got, ok := MulRate(ton, "5.25", TONDecimals, USDTDecimals, USDTDecimals)
	require.True(t, ok)
	assert.Equal(t, "10.500000", FormatUSDT(got))

	_, ok = MulRate(ton, "bad", TONDecimals, USDTDecimals, USDTDecimals)
	assert.False(t, ok)
}

func TestDivRate(t *testing.T) {
	// 150000 kobo (1500.00 NGN) at 1500 NGN/USDT = 1 USDT
	kobo := big.NewInt(150000)
	got, ok := DivRate(kobo, "1500", MinorDecimals, MinorDecimals, USDTDecimals)
	require.True(t, ok)
	assert.Equal(t, "1.000000", FormatUSDT(got))

	// 75000 kobo (750 NGN) at 1500 = 0.5 USDT
	got, ok = DivRate(big.NewInt(75000), "1500", MinorDecimals, MinorDecimals, USDTDecimals)
	require.True(t, ok)
	assert.Equal(t, "0.500000", FormatUSDT(got))

	_, ok = DivRate(kobo, "0", MinorDecimals, MinorDecimals, USDTDecimals)
	assert.False(t, ok)
}
