package api

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

// NewHTTPClient returns the *http.Client used for the RequestChannel.
// With no certificate paths it is a plain client; with caFile it trusts that
// CA; with certFile and keyFile it also presents the station certificate.
// dialTimeout bounds connection setup only; request deadlines come from
// Client.WithTimeout so that the continuous scan can stay open.
func NewHTTPClient(certFile, keyFile, caFile string, dialTimeout time.Duration) (*http.Client, error) {
	tlsCfg, err := NewTLSConfig(certFile, keyFile, caFile)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = dialTimeout
	transport.TLSClientConfig = tlsCfg
	return &http.Client{Transport: transport}, nil
}

// NewTLSConfig builds the station TLS configuration shared by the HTTP
// client and the event stream dialer. It returns nil when no path is set.
func NewTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	if certFile == "" && keyFile == "" && caFile == "" {
		return nil, nil
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA cert")
		}
		tlsCfg.RootCAs = caPool
	}

	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}
