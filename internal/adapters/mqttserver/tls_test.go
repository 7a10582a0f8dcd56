package mqttserver

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTLSConfigEmpty(t *testing.T) {
	cfg, err := TLSConfig("", "", "")
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config, got %v %v", cfg, err)
	}
}

func TestTLSConfigNeedsPair(t *testing.T) {
	if _, err := TLSConfig("", "cert.pem", ""); err == nil {
		t.Fatalf("expected error for missing key")
	}
}

func TestTLSConfigBadBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, []byte("not a cert"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := TLSConfig(path, "", ""); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTruncatePayload(t *testing.T) {
	long := make([]byte, 2000)
	if got := truncatePayload(long); len(got) != 1024+3 {
		t.Fatalf("unexpected length %d", len(got))
	}
	if got := truncatePayload([]byte("ok")); got != "ok" {
		t.Fatalf("unexpected %q", got)
	}
}
