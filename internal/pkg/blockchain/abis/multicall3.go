package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

func GetMulticall3ABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [
				{"name": "requireSuccess", "type": "bool"},
				{
					"name": "calls",
					"type": "tuple[]",
					"components": [
						{"name": "target", "type": "address"},
						{"name": "callData", "type": "bytes"}
					]
				}
			],
			"name": "tryAggregate",
			"outputs": [
				{
					"name": "returnData",
					"type": "tuple[]",
					"components": [
						{"name": "success", "type": "bool"},
						{"name": "returnData", "type": "bytes"}
					]
				}
			],
			"stateMutability": "payable",
			"type": "function"
		}
	]`)
}
