package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EncodeApprove packs approve(spender, amount) for an ERC-20 token.
func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return GetERC20ABI().Pack("approve", spender, amount)
}

// EncodeERC721Transfer packs safeTransferFrom(from, to, tokenId).
func EncodeERC721Transfer(from, to common.Address, tokenID *big.Int) ([]byte, error) {
	return GetERC721ABI().Pack("safeTransferFrom", from, to, tokenID)
}

// EncodeERC1155Transfer packs safeTransferFrom(from, to, id, amount, data).
func EncodeERC1155Transfer(from, to common.Address, tokenID, amount *big.Int) ([]byte, error) {
	return GetERC1155ABI().Pack("safeTransferFrom", from, to, tokenID, amount, []byte{})
}
