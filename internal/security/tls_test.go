package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestServerConfigDisabled(t *testing.T) {
	cfg, err := ServerConfig(TLSOptions{})
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config without TLS material, got %v %v", cfg, err)
	}
}

func TestServerConfigRequiresPair(t *testing.T) {
	if _, err := ServerConfig(TLSOptions{CertFile: "server.pem"}); err == nil {
		t.Fatal("expected error when key file is missing")
	}
}

func TestServerConfigMissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := ServerConfig(TLSOptions{
		CertFile: filepath.Join(dir, "cert.pem"),
		KeyFile:  filepath.Join(dir, "key.pem"),
	})
	if err == nil {
		t.Fatal("expected error for unreadable key pair")
	}
}

func TestServerConfigRejectsGarbageKeyPair(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "cert.pem")
	key := filepath.Join(dir, "key.pem")
	for _, p := range []string{cert, key} {
		if err := os.WriteFile(p, []byte("not pem"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := ServerConfig(TLSOptions{CertFile: cert, KeyFile: key}); err == nil {
		t.Fatal("expected parse error")
	}
}
