// Package upstream holds the connection-pooled HTTP client and the
// per-backend-kind adapters (OpenAI-shaped, line-delimited JSON, A1111
// images) that speak to whatever runtime a registry entry points at.
package upstream

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

// ClientOptions configures the shared transport every adapter is built on.
type ClientOptions struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxIdlePerHost int
	InsecureTLS    bool

	// CABundlePath, when set, is a PEM file of additional trusted roots for
	// verifying upstream certificates (BACKEND_CA_BUNDLE).
	CABundlePath string
	// ClientCertPath/ClientKeyPath, when both set, present a client
	// certificate to upstreams that require mutual TLS (BACKEND_CLIENT_CERT).
	ClientCertPath string
	ClientKeyPath  string
}

// NewHTTPClient builds an http.Client with a connection pool shared across
// requests to the same upstream host, a bounded connect phase, and no
// overall client timeout, so streaming bodies are not cut off (callers
// attach per-request context deadlines instead).
func NewHTTPClient(opts ClientOptions) *http.Client {
	maxIdle := opts.MaxIdlePerHost
	if maxIdle <= 0 {
		maxIdle = 16
	}
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	tlsConfig, err := buildTLSConfig(opts)
	if err != nil {
		// A malformed CA bundle or client cert is a startup-time
		// configuration error; fail closed rather than silently trusting
		// everything or dropping mutual TLS.
		tlsConfig = &tls.Config{InsecureSkipVerify: false}
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConnsPerHost: maxIdle,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     tlsConfig,
	}
	return &http.Client{
		Transport: transport,
		// No client-level timeout: streaming reads can run for minutes.
		// Callers attach context deadlines per call instead.
	}
}

func buildTLSConfig(opts ClientOptions) (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: opts.InsecureTLS}

	if opts.CABundlePath != "" {
		pem, err := os.ReadFile(opts.CABundlePath)
		if err != nil {
			return nil, fmt.Errorf("upstream: read ca bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("upstream: ca bundle %s contains no usable certificates", opts.CABundlePath)
		}
		cfg.RootCAs = pool
	}

	if opts.ClientCertPath != "" && opts.ClientKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(opts.ClientCertPath, opts.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("upstream: load client cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
