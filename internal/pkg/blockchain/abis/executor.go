package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetExecutorABI returns the input surface of the flash-loan liquidation
// executor contract. The agent only encodes these calls; the contract's
// executeOperation side is opaque to it.
//
// Canonical signatures (selector source of truth):
//
//	liquidateAndArb((address,address,uint256,address,(address,bytes)[],address,uint256))
//	liquidateBatchAndArb((address[],address,uint256[],address,(address,bytes)[],address,uint256))
func GetExecutorABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [
				{
					"name": "params",
					"type": "tuple",
					"components": [
						{"name": "user", "type": "address"},
						{"name": "debtAsset", "type": "address"},
						{"name": "debtToCover", "type": "uint256"},
						{"name": "collateralAsset", "type": "address"},
						{
							"name": "swaps",
							"type": "tuple[]",
							"components": [
								{"name": "router", "type": "address"},
								{"name": "callData", "type": "bytes"}
							]
						},
						{"name": "profitReceiver", "type": "address"},
						{"name": "minProfit", "type": "uint256"}
					]
				}
			],
			"name": "liquidateAndArb",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				{
					"name": "params",
					"type": "tuple",
					"components": [
						{"name": "users", "type": "address[]"},
						{"name": "debtAsset", "type": "address"},
						{"name": "debtToCover", "type": "uint256[]"},
						{"name": "collateralAsset", "type": "address"},
						{
							"name": "swaps",
							"type": "tuple[]",
							"components": [
								{"name": "router", "type": "address"},
								{"name": "callData", "type": "bytes"}
							]
						},
						{"name": "profitReceiver", "type": "address"},
						{"name": "minProfit", "type": "uint256"}
					]
				}
			],
			"name": "liquidateBatchAndArb",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)
}
