// Package client provides a TLS-aware HTTP client for a remote onceguard
// coordinator.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Client talks to a remote onceguard HTTP server (internal/server.Router).
type Client struct {
	baseURL    string
	credential string
	client     *http.Client
	logger     *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL    string
	Credential string // bearer token or API key sent as "Authorization: Bearer <credential>"
	Timeout    time.Duration
	Logger     *slog.Logger
	TLS        *TLSClientConfig
	Insecure   bool
}

// TLSClientConfig holds TLS configuration for the client transport.
type TLSClientConfig struct {
	Enabled    bool
	CACert     string
	ClientCert string
	ClientKey  string
	ServerName string
	SkipVerify bool
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{BaseURL: "http://localhost:8080", Timeout: 10 * time.Second}
}

// DefaultTLSConfig returns default TLS client configuration.
func DefaultTLSConfig() Config {
	return Config{
		BaseURL: "https://localhost:8080",
		Timeout: 10 * time.Second,
		TLS:     &TLSClientConfig{Enabled: true},
	}
}

// InsecureConfig returns a TLS client configuration that skips certificate verification.
func InsecureConfig() Config {
	return Config{BaseURL: "https://localhost:8080", Timeout: 10 * time.Second, Insecure: true}
}

// New creates a onceguard API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.TLS != nil && config.TLS.Enabled || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL:    config.BaseURL,
		credential: config.Credential,
		logger:     config.Logger,
		client:     &http.Client{Timeout: config.Timeout, Transport: transport},
	}
}

// IsReachable checks if the server is running and reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		c.logger.Debug("failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("server unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

// TryStart calls POST {base}/try-start with the given id.
func (c *Client) TryStart(ctx context.Context, id string) (TryStartResponse, error) {
	var out TryStartResponse
	body, err := json.Marshal(map[string]string{"id": id})
	if err != nil {
		return out, fmt.Errorf("marshal request: %w", err)
	}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/try-start", body, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Complete calls POST {base}/complete with the given id.
func (c *Client) Complete(ctx context.Context, id string) error {
	body, err := json.Marshal(map[string]string{"id": id})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, c.baseURL+"/complete", body, nil)
}

// Status calls GET {base}/status?id=... for the given id.
func (c *Client) Status(ctx context.Context, id string) (StatusResponse, error) {
	var out StatusResponse
	url := fmt.Sprintf("%s/status?id=%s", c.baseURL, id)
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &out); err != nil {
		return out, err
	}
	return out, nil
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}

	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	return tlsConfig, nil
}

func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out any) error {
	var bodyReader *bytes.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("http request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("http %d", resp.StatusCode)
		}
		return fmt.Errorf("onceguard: %s", errResp.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
