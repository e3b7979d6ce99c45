package id

import "testing"

func TestParseChainVariants(t *testing.T) {
	chain, err := ParseChain("base")
	if err != nil {
		t.Fatalf("ParseChain(base) failed: %v", err)
	}
	if chain.CAIP2 != "eip155:8453" {
		t.Fatalf("unexpected CAIP2: %s", chain.CAIP2)
	}

	chain, err = ParseChain("8453")
	if err != nil {
		t.Fatalf("ParseChain(8453) failed: %v", err)
	}
	if chain.Slug != "base" {
		t.Fatalf("unexpected slug: %s", chain.Slug)
	}

	chain, err = ParseChain("eip155:999999")
	if err != nil {
		t.Fatalf("ParseChain(eip155:999999) failed: %v", err)
	}
	if chain.EVMChainID != 999999 {
		t.Fatalf("unexpected chain ID: %d", chain.EVMChainID)
	}
}

func TestParseAssetSymbolAndAddress(t *testing.T) {
	chain, _ := ParseChain("ethereum")

	asset, err := ParseAsset("USDC", chain)
	if err != nil {
		t.Fatalf("ParseAsset(USDC) failed: %v", err)
	}
	if asset.AssetID == "" || asset.Decimals != 6 {
		t.Fatalf("unexpected asset result: %+v", asset)
	}

	asset2, err := ParseAsset("0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48", chain)
	if err != nil {
		t.Fatalf("ParseAsset(address) failed: %v", err)
	}
	if asset2.Symbol != "USDC" {
		t.Fatalf("expected USDC, got %s", asset2.Symbol)
	}
}

func TestParseAssetChainMismatch(t *testing.T) {
	chain, _ := ParseChain("base")
	_, err := ParseAsset("eip155:1/erc20:0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", chain)
	if err == nil {
		t.Fatal("expected chain mismatch error")
	}
}

func TestParseAssetNativeForms(t *testing.T) {
	chain, _ := ParseChain("ethereum")

	bySymbol, err := ParseAsset("eth", chain)
	if err != nil {
		t.Fatalf("ParseAsset(eth) failed: %v", err)
	}
	if !bySymbol.Native || bySymbol.Address != NativeAddressSentinel {
		t.Fatalf("unexpected native asset: %+v", bySymbol)
	}

	byZero, err := ParseAsset(NativeAddressZero, chain)
	if err != nil {
		t.Fatalf("ParseAsset(zero address) failed: %v", err)
	}
	if !byZero.Native || byZero.Symbol != "ETH" {
		t.Fatalf("zero address should resolve native: %+v", byZero)
	}

	bySentinel, err := ParseAsset("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE", chain)
	if err != nil {
		t.Fatalf("ParseAsset(sentinel address) failed: %v", err)
	}
	if bySentinel.AssetID != byZero.AssetID {
		t.Fatalf("sentinel spellings must resolve to the same asset: %s vs %s", bySentinel.AssetID, byZero.AssetID)
	}
}

func TestNativeAddressSynonyms(t *testing.T) {
	if !IsNativeAddress(NativeAddressZero) {
		t.Fatal("zero address should be native")
	}
	if !IsNativeAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE") {
		t.Fatal("0xeee sentinel should be native regardless of case")
	}
	if IsNativeAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48") {
		t.Fatal("erc20 address must not be native")
	}
}

func TestRegisterTokensReplacesChainList(t *testing.T) {
	const chainID = "eip155:777001"
	RegisterTokens(chainID, []Token{
		{Symbol: "abc", Address: "0x00000000000000000000000000000000000000AB", Decimals: 8},
	})
	token, ok := KnownToken(chainID, "ABC")
	if !ok {
		t.Fatal("registered token not found")
	}
	if token.Address != "0x00000000000000000000000000000000000000ab" || token.Decimals != 8 {
		t.Fatalf("unexpected token: %+v", token)
	}

	RegisterTokens(chainID, []Token{
		{Symbol: "XYZ", Address: "0x00000000000000000000000000000000000000CD", Decimals: 6},
	})
	if _, ok := KnownToken(chainID, "ABC"); ok {
		t.Fatal("replacement should drop the previous list wholesale")
	}
	if _, ok := KnownToken(chainID, "XYZ"); !ok {
		t.Fatal("replacement token missing")
	}
}
