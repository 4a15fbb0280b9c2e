package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// SaleContractVersion selects the mint calldata layout of the deployed
// primary-sale contract. The two generations are not wire compatible.
type SaleContractVersion int

const (
	SaleContractV0 SaleContractVersion = iota
	SaleContractV1
)

// ERC20 ABI JSON for allowance, approve and balanceOf functions
const erc20ABIJSON = `[
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"type": "function"
	}
]`

// Sale contract ABI JSON, first generation mint layout
const saleV0ABIJSON = `[
	{
		"constant": false,
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "tokenIds", "type": "uint256[]"},
			{"name": "amounts", "type": "uint256[]"},
			{"name": "paymentToken", "type": "address"},
			{"name": "maxTotal", "type": "uint256"},
			{"name": "data", "type": "bytes"}
		],
		"name": "mint",
		"outputs": [],
		"type": "function"
	}
]`

// Sale contract ABI JSON, second generation mint layout with allowlist proof
const saleV1ABIJSON = `[
	{
		"constant": false,
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "tokenIds", "type": "uint256[]"},
			{"name": "amounts", "type": "uint256[]"},
			{"name": "data", "type": "bytes"},
			{"name": "paymentToken", "type": "address"},
			{"name": "maxTotal", "type": "uint256"},
			{"name": "proof", "type": "bytes32[]"}
		],
		"name": "mint",
		"outputs": [],
		"type": "function"
	}
]`

// ERC721 ABI JSON for safeTransferFrom
const erc721ABIJSON = `[
	{
		"constant": false,
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "tokenId", "type": "uint256"}
		],
		"name": "safeTransferFrom",
		"outputs": [],
		"type": "function"
	}
]`

// ERC1155 ABI JSON for safeTransferFrom
const erc1155ABIJSON = `[
	{
		"constant": false,
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "id", "type": "uint256"},
			{"name": "amount", "type": "uint256"},
			{"name": "data", "type": "bytes"}
		],
		"name": "safeTransferFrom",
		"outputs": [],
		"type": "function"
	}
]`

// GetERC20ABI returns the parsed ERC20 ABI
func GetERC20ABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC20 ABI: " + err.Error())
	}
	return parsed
}

// GetSaleV0ABI returns the parsed first generation sale contract ABI
func GetSaleV0ABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(saleV0ABIJSON))
	if err != nil {
		panic("failed to parse sale v0 ABI: " + err.Error())
	}
	return parsed
}

// GetSaleV1ABI returns the parsed second generation sale contract ABI
func GetSaleV1ABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(saleV1ABIJSON))
	if err != nil {
		panic("failed to parse sale v1 ABI: " + err.Error())
	}
	return parsed
}

// GetERC721ABI returns the parsed ERC721 ABI
func GetERC721ABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc721ABIJSON))
	if err != nil {
		panic("failed to parse ERC721 ABI: " + err.Error())
	}
	return parsed
}

// GetERC1155ABI returns the parsed ERC1155 ABI
func GetERC1155ABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc1155ABIJSON))
	if err != nil {
		panic("failed to parse ERC1155 ABI: " + err.Error())
	}
	return parsed
}
