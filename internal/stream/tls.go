package stream

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"zonewatch/internal/config"
)

func buildTLSConfig(settings config.TLSConfig) (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: settings.InsecureSkipVerify}
	if settings.ServerName != "" {
		cfg.ServerName = settings.ServerName
	}

	if settings.CAFile != "" {
		ca, err := os.ReadFile(settings.CAFile)
		if err != nil {
			return nil, fmt.Errorf("stream: read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(ca); !ok {
			return nil, fmt.Errorf("stream: parse ca file %s", settings.CAFile)
		}
		cfg.RootCAs = pool
	}

	if settings.CertFile != "" && settings.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(settings.CertFile, settings.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("stream: load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
