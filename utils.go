package marketsdk

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	MaxDecimals = 18
	ZeroAddress = "0x0000000000000000000000000000000000000000"
)

// ParseBig parses an amount that may be either a decimal string or a
// 0x-prefixed hex quantity, the two encodings backends emit for step values.
func ParseBig(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := hexutil.DecodeBig(s)
		if err != nil {
			return nil, &InvalidParamError{Message: fmt.Sprintf("invalid hex amount: %s", s)}
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, &InvalidParamError{Message: fmt.Sprintf("invalid decimal amount: %s", s)}
	}
	return v, nil
}

// FormatUnits renders a base-unit amount as a human-readable decimal string.
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	if decimals <= 0 {
		return amount.String()
	}

	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	integer := new(big.Int)
	frac := new(big.Int)
	integer.QuoRem(abs, divisor, frac)

	out := integer.String()
	if frac.Sign() > 0 {
		fracStr := frac.String()
		if pad := decimals - len(fracStr); pad > 0 {
			fracStr = strings.Repeat("0", pad) + fracStr
		}
		fracStr = strings.TrimRight(fracStr, "0")
		if fracStr != "" {
			out = out + "." + fracStr
		}
	}
	if neg {
		out = "-" + out
	}
	return out
}

// UnitsToFloat converts a base-unit amount to a float64 for analytics
// payloads. Precision loss is acceptable there; never use this for
// on-chain values.
func UnitsToFloat(amount *big.Int, decimals int) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	if decimals > 0 {
		divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
		f.Quo(f, divisor)
	}
	out, _ := f.Float64()
	return out
}

// messageBytes interprets EIP-191 step data: hex-encoded payloads are signed
// as raw bytes, anything else as a UTF-8 message.
func messageBytes(data string) []byte {
	if strings.HasPrefix(data, "0x") || strings.HasPrefix(data, "0X") {
		if raw, err := hexutil.Decode(data); err == nil {
			return raw
		}
	}
	return []byte(data)
}
