package crypto

import (
	"strings"
	"testing"
)

func TestHeadersAtDeterministic(t *testing.T) {
	auth := &HMACAuth{Key: "test-key", Secret: "test-secret", RecvWindow: 5000}

	h1 := auth.HeadersAt("symbol=BTCUSDT", 1700000000000)
	h2 := auth.HeadersAt("symbol=BTCUSDT", 1700000000000)

	if h1["X-BAPI-API-KEY"] != "test-key" {
		t.Fatalf("api key header = %q", h1["X-BAPI-API-KEY"])
	}
	if h1["X-BAPI-TIMESTAMP"] != "1700000000000" {
		t.Fatalf("timestamp header = %q", h1["X-BAPI-TIMESTAMP"])
	}
	if h1["X-BAPI-RECV-WINDOW"] != "5000" {
		t.Fatalf("recv window header = %q", h1["X-BAPI-RECV-WINDOW"])
	}
	if h1["X-BAPI-SIGN"] == "" || h1["X-BAPI-SIGN"] != h2["X-BAPI-SIGN"] {
		t.Fatalf("signature not deterministic: %q vs %q", h1["X-BAPI-SIGN"], h2["X-BAPI-SIGN"])
	}
	// HMAC-SHA256 hex is 64 characters.
	if len(h1["X-BAPI-SIGN"]) != 64 {
		t.Fatalf("signature length = %d, want 64", len(h1["X-BAPI-SIGN"]))
	}
}

func TestHeadersAtPayloadChangesSignature(t *testing.T) {
	auth := &HMACAuth{Key: "test-key", Secret: "test-secret", RecvWindow: 5000}

	a := auth.HeadersAt("symbol=BTCUSDT", 1700000000000)["X-BAPI-SIGN"]
	b := auth.HeadersAt("symbol=ETHUSDT", 1700000000000)["X-BAPI-SIGN"]
	c := auth.HeadersAt("symbol=BTCUSDT", 1700000000001)["X-BAPI-SIGN"]

	if a == b {
		t.Fatal("different payloads must produce different signatures")
	}
	if a == c {
		t.Fatal("different timestamps must produce different signatures")
	}
}

func TestHMACAuthStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "abcdef123456", Secret: "supersecretvalue"}
	s := auth.String()
	if strings.Contains(s, "supersecretvalue") || strings.Contains(s, "abcdef123456") {
		t.Fatalf("String() leaks credentials: %s", s)
	}
	if !strings.Contains(s, "abcd****") {
		t.Fatalf("String() = %s, want redacted key prefix", s)
	}
}
