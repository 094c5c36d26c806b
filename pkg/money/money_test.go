package money

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want int64
	}{
		{"major string", "15.00", 1500},
		{"major string no fraction", "15", 1500},
		{"string rounds to cent", "10.005", 1001},
		{"string with spaces", " 2.5 ", 250},
		{"fractional float is major", 12.34, 1234},
		{"integral float is minor", float64(1500), 1500},
		{"int is minor", 1500, 1500},
		{"int64 is minor", int64(99), 99},
		{"json int", json.Number("700"), 700},
		{"json fraction", json.Number("7.25"), 725},
		{"negative string", "-1.00", 0},
		{"negative int", -5, 0},
		{"garbage", "ten dollars", 0},
		{"nan", math.NaN(), 0},
		{"inf", math.Inf(1), 0},
		{"over safe", int64(MaxSafe) + 1, 0},
		{"nil", nil, 0},
		{"bool", true, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestIsValid(t *testing.T) {
	require.True(t, IsValid(0))
	require.True(t, IsValid(MaxSafe))
	require.False(t, IsValid(-1))
	require.False(t, IsValid(MaxSafe+1))
}

func TestFromMajorAndToMajor(t *testing.T) {
	v, err := FromMajor("10.00")
	require.NoError(t, err)
	require.Equal(t, int64(1000), v)

	_, err = FromMajor("abc")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = FromMajor("-3")
	require.ErrorIs(t, err, ErrInvalidAmount)

	require.Equal(t, "15.00", ToMajor(1500))
	require.Equal(t, "0.05", ToMajor(5))
	require.Equal(t, "0.00", ToMajor(0))
}

func TestLineAmount(t *testing.T) {
	require.Equal(t, int64(500), LineAmount(500, 1000))
	require.Equal(t, int64(1000), LineAmount(500, 2000))
	// 333 * 1500 / 1000 = 499.5 rounds away from zero
	require.Equal(t, int64(500), LineAmount(333, 1500))
	require.Equal(t, int64(0), LineAmount(1, 100))
	require.Equal(t, int64(0), LineAmount(500, 0))
	require.Equal(t, int64(0), LineAmount(-1, 10))
}

func TestPercent(t *testing.T) {
	require.Equal(t, int64(150), Percent(1500, 1000))
	require.Equal(t, int64(0), Percent(1500, 0))
	require.Equal(t, int64(1), Percent(5, 1500))
}
