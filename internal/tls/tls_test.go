package tls

import (
	"testing"

	"github.com/loykin/onceguard/internal/config"
)

func TestSetupTLS_Disabled(t *testing.T) {
	cfg, err := SetupTLS(config.ServerConfig{})
	if err != nil {
		t.Fatalf("SetupTLS: %v", err)
	}
	if cfg != nil {
		t.Fatal("expected nil config when TLS disabled")
	}
}

func TestSetupTLS_AutoGeneratesAndLoadsCertificate(t *testing.T) {
	dir := t.TempDir()
	cfg, err := SetupTLS(config.ServerConfig{
		TLS: &config.TLSConfig{
			Enabled:      true,
			Dir:          dir,
			AutoGenerate: true,
		},
	})
	if err != nil {
		t.Fatalf("SetupTLS: %v", err)
	}
	if cfg == nil || cfg.GetCertificate == nil {
		t.Fatal("expected a certificate-serving TLS config")
	}
	cert, err := cfg.GetCertificate(nil)
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	if cert == nil {
		t.Fatal("expected non-nil certificate")
	}
}

func TestSetupTLS_NoCertConfigured(t *testing.T) {
	_, err := SetupTLS(config.ServerConfig{TLS: &config.TLSConfig{Enabled: true}})
	if err == nil {
		t.Fatal("expected error when TLS enabled without cert source")
	}
}
