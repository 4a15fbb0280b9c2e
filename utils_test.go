package marketsdk

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBig(t *testing.T) {
	v, err := ParseBig("1000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", v.String())

	v, err = ParseBig("0xde0b6b3a7640000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", v.String())

	v, err = ParseBig("")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.Int64())

	_, err = ParseBig("not-a-number")
	assert.Error(t, err)

	_, err = ParseBig("0xzz")
	assert.Error(t, err)
}

func TestFormatUnits(t *testing.T) {
	wei := func(s string) *big.Int {
		v, ok := new(big.Int).SetString(s, 10)
		require.True(t, ok)
		return v
	}

	assert.Equal(t, "1", FormatUnits(wei("1000000000000000000"), 18))
	assert.Equal(t, "1.5", FormatUnits(wei("1500000000000000000"), 18))
	assert.Equal(t, "0.000000000000000001", FormatUnits(wei("1"), 18))
	assert.Equal(t, "0", FormatUnits(wei("0"), 18))
	assert.Equal(t, "-2.5", FormatUnits(wei("-2500000000000000000"), 18))
	assert.Equal(t, "42", FormatUnits(wei("42"), 0))
	assert.Equal(t, "0", FormatUnits(nil, 18))
}

func TestMessageBytes(t *testing.T) {
	assert.Equal(t, []byte{0xde, 0xad}, messageBytes("0xdead"))
	assert.Equal(t, []byte("hello"), messageBytes("hello"))
	// malformed hex falls back to UTF-8
	assert.Equal(t, []byte("0xzz"), messageBytes("0xzz"))
}
