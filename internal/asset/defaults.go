package asset

// DefaultDefinitions lists the Ethereum mainnet stablecoins tracked out of the
// box. IDs follow DeFiLlama naming so snapshots stay joinable with external
// datasets.
func DefaultDefinitions() []Definition {
	return []Definition{
		{ID: "tether", Symbol: "USDT", Name: "Tether", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		{ID: "usd-coin", Symbol: "USDC", Name: "USD Coin", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		{ID: "ripple-usd", Symbol: "RLUSD", Name: "Ripple USD", Address: "0x8292Bb45bf1Ee4d140127049757C2E0fF06317eD", Decimals: 18},
		{ID: "paypal-usd", Symbol: "PYUSD", Name: "PayPal USD", Address: "0x6c3ea9036406852006290770BEdFcAbA0e23A0e8", Decimals: 6},
		{ID: "ethena-usde", Symbol: "USDe", Name: "Ethena USDe", Address: "0x4c9EDD5852cd905f086C759E8383e09bff1E68B3", Decimals: 18},
		{ID: "agora-dollar", Symbol: "AUSD", Name: "Agora Dollar", Address: "0x00000000eFE302BEAA2b3e6e1b18d08D69a9012a", Decimals: 6},
		{ID: "dai", Symbol: "DAI", Name: "Dai", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
		{ID: "usds", Symbol: "USDS", Name: "Sky Dollar", Address: "0xdC035D45d973E3EC169d2276DDab16f1e407384F", Decimals: 18},
		{ID: "frax", Symbol: "FRAX", Name: "Frax", Address: "0x853d955aCEf822Db058eb8505911ED77F175b99e", Decimals: 18},
		{ID: "gho", Symbol: "GHO", Name: "Aave GHO", Address: "0x40D16FC0246aD3160Ccc09B8D0D3A2cD28aE6C2f", Decimals: 18},
		{ID: "first-digital-usd", Symbol: "FDUSD", Name: "First Digital USD", Address: "0xc5f0f7b66764F6ec8C8Dff7BA683102295E16409", Decimals: 18},
		{ID: "true-usd", Symbol: "TUSD", Name: "TrueUSD", Address: "0x0000000000085d4780B73119b644AE5ecd22b376", Decimals: 18},
		{ID: "crvusd", Symbol: "crvUSD", Name: "Curve USD", Address: "0xf939E0A03FB07F59A73314E73794Be0E57ac1b4E", Decimals: 18},
		{ID: "liquity-usd", Symbol: "LUSD", Name: "Liquity USD", Address: "0x5f98805A4E8be255a32880FDeC7F6728C6568bA0", Decimals: 18},
		{ID: "usual-usd", Symbol: "USD0", Name: "Usual USD", Address: "0x73A15FeD60Bf67631dC6cd7Bc5B6e8da8190aCF5", Decimals: 18},
	}
}

// DefaultBases returns the base assets eligible as unit of account.
func DefaultBases() []string {
	return []string{"USDT", "USDC"}
}

// DefaultSizes returns the probe notionals in whole base units.
func DefaultSizes() []SizeDefinition {
	return []SizeDefinition{
		{Label: "1M", Value: 1_000_000},
		{Label: "5M", Value: 5_000_000},
		{Label: "10M", Value: 10_000_000},
	}
}
