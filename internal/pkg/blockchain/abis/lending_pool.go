package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetLendingPoolABI returns the Aave-v3 pool surface the agent reads.
// healthFactor is the sixth return word, scaled by 1e18.
func GetLendingPoolABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [{"name": "user", "type": "address"}],
			"name": "getUserAccountData",
			"outputs": [
				{"name": "totalCollateralBase", "type": "uint256"},
				{"name": "totalDebtBase", "type": "uint256"},
				{"name": "availableBorrowsBase", "type": "uint256"},
				{"name": "currentLiquidationThreshold", "type": "uint256"},
				{"name": "ltv", "type": "uint256"},
				{"name": "healthFactor", "type": "uint256"}
			],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}
