// Package security builds TLS settings for the HTTP and metrics listeners.
package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSOptions points at PEM files. ClientCAFile is required when RequireClientCert is set.
type TLSOptions struct {
	CertFile          string
	KeyFile           string
	ClientCAFile      string
	RequireClientCert bool
}

// Enabled reports whether any TLS material was configured.
func (o TLSOptions) Enabled() bool {
	return o.CertFile != "" || o.KeyFile != ""
}

// ServerConfig returns nil when TLS is not configured.
func ServerConfig(o TLSOptions) (*tls.Config, error) {
	if !o.Enabled() {
		return nil, nil
	}
	if o.CertFile == "" || o.KeyFile == "" {
		return nil, fmt.Errorf("tls cert file and key file are both required")
	}

	cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}
	if !o.RequireClientCert {
		return cfg, nil
	}
	if o.ClientCAFile == "" {
		return nil, fmt.Errorf("client ca file is required for client cert auth")
	}
	caPEM, err := os.ReadFile(o.ClientCAFile)
	if err != nil {
		return nil, fmt.Errorf("read client ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates in %q", o.ClientCAFile)
	}
	cfg.ClientCAs = pool
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	return cfg, nil
}
