package exchange

import (
	"strings"
	"testing"

	"perpquoter/internal/config"
	"perpquoter/pkg/types"
)

func testAuth(t *testing.T) *Auth {
	t.Helper()
	cfg := config.Config{
		Wallet: config.WalletConfig{
			PrivateKey: "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
			ChainID:    137,
		},
		API: config.APIConfig{ApiKey: "key", Secret: "c2VjcmV0", Passphrase: "pass"},
	}
	a, err := NewAuth(cfg)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	return a
}

func TestSignOrderProducesSignature(t *testing.T) {
	t.Parallel()
	a := testAuth(t)

	sig, err := a.SignOrder("ETH-PERP", types.BID, "1999.5", "5.5", 10, "1", "0")
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Errorf("recovery id = %d, want 27 or 28", sig[64])
	}
}

func TestL2HeadersIncludesCredentials(t *testing.T) {
	t.Parallel()
	a := testAuth(t)

	headers, err := a.L2Headers("POST", "/orders", `{"price":"1999.5"}`)
	if err != nil {
		t.Fatalf("L2Headers: %v", err)
	}
	if headers["MM-API-KEY"] != "key" {
		t.Errorf("MM-API-KEY = %q, want key", headers["MM-API-KEY"])
	}
	if headers["MM-SIGNATURE"] == "" {
		t.Error("expected non-empty signature")
	}
}

func TestHasL2Credentials(t *testing.T) {
	t.Parallel()
	a := testAuth(t)
	if !a.HasL2Credentials() {
		t.Error("expected credentials to be present")
	}

	a.SetCredentials(Credentials{})
	if a.HasL2Credentials() {
		t.Error("expected credentials to be absent after clearing")
	}
}

func TestAddressIsDerivedFromKey(t *testing.T) {
	t.Parallel()
	a := testAuth(t)
	if !strings.HasPrefix(a.Address().Hex(), "0x") {
		t.Errorf("address = %s, want 0x-prefixed", a.Address().Hex())
	}
}
