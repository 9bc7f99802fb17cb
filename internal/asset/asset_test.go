package asset

import (
	"strings"
	"testing"
)

func testDefs() []Definition {
	return []Definition{
		{ID: "usdt", Symbol: "USDT", Name: "Tether USD", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		{ID: "rlusd", Symbol: "RLUSD", Name: "Ripple USD", Address: "0x8292Bb45bf1Ee4d140127049757C2E0fF06317eD", Decimals: 18},
	}
}

func testSizes() []SizeDefinition {
	return []SizeDefinition{
		{Label: "1M", Value: 1_000_000},
		{Label: "5M", Value: 5_000_000},
	}
}

func TestNewUniverse(t *testing.T) {
	u, err := NewUniverse(testDefs(), []string{"USDT"}, testSizes())
	if err != nil {
		t.Fatalf("NewUniverse should succeed: %v", err)
	}
	if len(u.Assets()) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(u.Assets()))
	}
	if len(u.Sizes()) != 2 {
		t.Fatalf("expected 2 sizes, got %d", len(u.Sizes()))
	}
}

func TestNewUniverseRejectsBadAddress(t *testing.T) {
	defs := testDefs()
	defs[1].Address = "not-an-address"
	if _, err := NewUniverse(defs, []string{"USDT"}, testSizes()); err == nil {
		t.Fatal("invalid contract address should be rejected")
	}
}

func TestNewUniverseRejectsBadDecimals(t *testing.T) {
	defs := testDefs()
	defs[0].Decimals = 8
	if _, err := NewUniverse(defs, []string{"USDT"}, testSizes()); err == nil {
		t.Fatal("decimals other than 6 or 18 should be rejected")
	}
}

func TestNewUniverseRejectsUnknownBase(t *testing.T) {
	if _, err := NewUniverse(testDefs(), []string{"DAI"}, testSizes()); err == nil {
		t.Fatal("base asset outside the tracked set should be rejected")
	}
}

func TestAddressesAreChecksummed(t *testing.T) {
	defs := testDefs()
	defs[0].Address = strings.ToLower(defs[0].Address)
	u, err := NewUniverse(defs, []string{"USDT"}, testSizes())
	if err != nil {
		t.Fatalf("NewUniverse should succeed: %v", err)
	}
	a, _ := u.BySymbol("usdt")
	if a.Address != "0xdAC17F958D2ee523a2206206994597C13D831ec7" {
		t.Fatalf("expected checksummed address, got %s", a.Address)
	}
}

func TestBaseEligibility(t *testing.T) {
	u, err := NewUniverse(testDefs(), []string{"USDT"}, testSizes())
	if err != nil {
		t.Fatalf("NewUniverse should succeed: %v", err)
	}

	if _, err := u.Base("usdt"); err != nil {
		t.Fatalf("eligible base should resolve case-insensitively: %v", err)
	}
	if _, err := u.Base("RLUSD"); err == nil {
		t.Fatal("tracked asset not configured as base should be rejected")
	}
}

func TestSizeLookup(t *testing.T) {
	u, err := NewUniverse(testDefs(), []string{"USDT"}, testSizes())
	if err != nil {
		t.Fatalf("NewUniverse should succeed: %v", err)
	}

	size, err := u.Size("5M")
	if err != nil {
		t.Fatalf("known size should resolve: %v", err)
	}
	if size.Value != 5_000_000 {
		t.Fatalf("expected 5000000, got %d", size.Value)
	}
	if _, err := u.Size("100M"); err == nil {
		t.Fatal("unknown size label should be rejected")
	}
}

func TestDefaultDefinitionsBuildAValidUniverse(t *testing.T) {
	u, err := NewUniverse(DefaultDefinitions(), DefaultBases(), DefaultSizes())
	if err != nil {
		t.Fatalf("defaults should build a valid universe: %v", err)
	}
	for _, symbol := range []string{"USDT", "USDC"} {
		if _, err := u.Base(symbol); err != nil {
			t.Fatalf("%s should be an eligible base: %v", symbol, err)
		}
	}
	if got := u.SizeLabels(); len(got) != 3 {
		t.Fatalf("expected 3 default sizes, got %v", got)
	}
}
