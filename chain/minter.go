package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MintCall carries the arguments of a primary-sale mint, independent of the
// deployed contract generation.
type MintCall struct {
	Recipient common.Address
	TokenIDs  []*big.Int
	Amounts   []*big.Int
	// PaymentToken is the ERC-20 paying for the mint; the zero address
	// means the native token.
	PaymentToken common.Address
	MaxTotal     *big.Int
	Data         []byte
	// Proof is the allowlist merkle proof. Only the second generation
	// layout carries it; v0 encoders reject a non-empty proof.
	Proof [][32]byte
}

// MintEncoder produces mint calldata for one sale contract generation.
type MintEncoder interface {
	Version() SaleContractVersion
	Encode(call *MintCall) ([]byte, error)
}

// NewMintEncoder returns the encoder for a sale contract generation.
func NewMintEncoder(version SaleContractVersion) (MintEncoder, error) {
	switch version {
	case SaleContractV0:
		return &v0MintEncoder{}, nil
	case SaleContractV1:
		return &v1MintEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown sale contract version: %d", version)
	}
}

type v0MintEncoder struct{}

func (e *v0MintEncoder) Version() SaleContractVersion {
	return SaleContractV0
}

// Encode packs mint(to, tokenIds, amounts, paymentToken, maxTotal, data).
func (e *v0MintEncoder) Encode(call *MintCall) ([]byte, error) {
	if err := validateMintCall(call); err != nil {
		return nil, err
	}
	if len(call.Proof) > 0 {
		return nil, fmt.Errorf("sale contract v0 does not accept a merkle proof")
	}
	data := call.Data
	if data == nil {
		data = []byte{}
	}
	return GetSaleV0ABI().Pack("mint",
		call.Recipient,
		call.TokenIDs,
		call.Amounts,
		call.PaymentToken,
		call.MaxTotal,
		data,
	)
}

type v1MintEncoder struct{}

func (e *v1MintEncoder) Version() SaleContractVersion {
	return SaleContractV1
}

// Encode packs mint(to, tokenIds, amounts, data, paymentToken, maxTotal, proof).
func (e *v1MintEncoder) Encode(call *MintCall) ([]byte, error) {
	if err := validateMintCall(call); err != nil {
		return nil, err
	}
	data := call.Data
	if data == nil {
		data = []byte{}
	}
	proof := call.Proof
	if proof == nil {
		proof = [][32]byte{}
	}
	return GetSaleV1ABI().Pack("mint",
		call.Recipient,
		call.TokenIDs,
		call.Amounts,
		data,
		call.PaymentToken,
		call.MaxTotal,
		proof,
	)
}

func validateMintCall(call *MintCall) error {
	if len(call.TokenIDs) == 0 {
		return fmt.Errorf("mint call has no token ids")
	}
	if len(call.TokenIDs) != len(call.Amounts) {
		return fmt.Errorf("mint call has %d token ids but %d amounts", len(call.TokenIDs), len(call.Amounts))
	}
	if call.MaxTotal == nil {
		return fmt.Errorf("mint call has no max total")
	}
	return nil
}
