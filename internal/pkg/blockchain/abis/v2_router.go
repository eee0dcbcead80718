package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetV2RouterABI returns the Uniswap-V2 router surface used for quoting and
// swapping.
func GetV2RouterABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [
				{"name": "amountIn", "type": "uint256"},
				{"name": "path", "type": "address[]"}
			],
			"name": "getAmountsOut",
			"outputs": [{"name": "amounts", "type": "uint256[]"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "amountIn", "type": "uint256"},
				{"name": "amountOutMin", "type": "uint256"},
				{"name": "path", "type": "address[]"},
				{"name": "to", "type": "address"},
				{"name": "deadline", "type": "uint256"}
			],
			"name": "swapExactTokensForTokens",
			"outputs": [{"name": "amounts", "type": "uint256[]"}],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)
}

func GetV2FactoryABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [
				{"name": "tokenA", "type": "address"},
				{"name": "tokenB", "type": "address"}
			],
			"name": "getPair",
			"outputs": [{"name": "pair", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}

func GetV2PairABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [],
			"name": "getReserves",
			"outputs": [
				{"name": "reserve0", "type": "uint112"},
				{"name": "reserve1", "type": "uint112"},
				{"name": "blockTimestampLast", "type": "uint32"}
			],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}
