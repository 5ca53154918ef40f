package ecodevices

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"go.uber.org/zap"
)

const (
	API_PATH        = "/api/xdevices.json"
	DEFAULT_TIMEOUT = 2 * time.Second
	maxBodySize     = 1 << 20
)

var (
	identityMACFields     = []string{"mac", "MAC", "mac_address"}
	identityVersionFields = []string{"version", "FW", "firmware"}
)

type ClientConfig struct {
	Host     string
	Port     uint
	Username string
	Password string
	Timeout  time.Duration
}

type HTTPClient struct {
	client     *http.Client
	host       string
	port       uint
	apiURL     string
	username   string
	password   string
	instrument []Instrument
}

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(req)
}

func CreateHTTPClient(cfg ClientConfig, logger *zap.Logger, instrumentation *Instrument) (*HTTPClient, error) {
	if cfg.Host == "" {
		return nil, errors.New("eco-devices host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 80
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DEFAULT_TIMEOUT
	}
	apiURL := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(int(cfg.Port))),
		Path:   API_PATH,
	}

	// instrumentation
	var inst []Instrument
	if logger != nil {
		logInst := traceLoggerInstrumentation(logger.With(zap.String("target", "ecodevices"), zap.String("host", cfg.Host)))
		if logInst != nil {
			inst = append(inst, *logInst)
		}
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: &userAgentTransport{
				transport: http.DefaultTransport.(*http.Transport).Clone(),
				userAgent: "ecodevices2mqtt/" + versioninfo.Short(),
			},
			Timeout: cfg.Timeout,
		},
		host:       cfg.Host,
		port:       cfg.Port,
		apiURL:     apiURL.String(),
		username:   cfg.Username,
		password:   cfg.Password,
		instrument: inst,
	}, nil
}

func (c *HTTPClient) Host() string {
	return c.host
}

func (c *HTTPClient) Port() uint {
	return c.port
}

func (c *HTTPClient) Fetch(ctx context.Context, cmd Command) (snapshot Snapshot, err error) {
	defer func() { recordTimer(cmd, c.instrument)(err) }()

	content, err := c.request(ctx, cmd)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(content, time.Now()), nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.Fetch(ctx, CommandTelemetry)
	return err
}

func (c *HTTPClient) Identify(ctx context.Context) (DeviceIdentity, error) {
	snapshot, err := c.Fetch(ctx, CommandIdentity)
	if err != nil {
		return DeviceIdentity{}, err
	}
	identity := DeviceIdentity{
		Host: c.host,
		Port: c.port,
	}
	for _, key := range identityMACFields {
		if v, ok := snapshot.String(key); ok && v != "" {
			identity.MACAddress = v
			break
		}
	}
	for _, key := range identityVersionFields {
		if v, ok := snapshot.String(key); ok && v != "" {
			identity.Version = v
			break
		}
	}
	return identity, nil
}

func (c *HTTPClient) Close() {
	c.client.CloseIdleConnections()
}

func (c *HTTPClient) request(ctx context.Context, cmd Command) (map[string]any, error) {
	params := url.Values{}
	params.Set("cmd", cmd.String())
	reqURL := c.apiURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &ConnectError{URL: reqURL, Err: err}
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ConnectError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{URL: reqURL, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &ConnectError{URL: reqURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &ConnectError{URL: reqURL, Err: err}
	}

	var content map[string]any
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&content); err != nil {
		// a garbled body is handled like a failed transfer
		return nil, &ConnectError{URL: reqURL, Err: fmt.Errorf("invalid json body: %w", err)}
	}
	product, _ := content[FIELD_PRODUCT].(string)
	if product != PRODUCT_ECODEVICES {
		return nil, &ProtocolError{URL: reqURL, Reason: fmt.Sprintf("unexpected product %q", product)}
	}
	return content, nil
}

// ensure interface compliance
var _ Client = (*HTTPClient)(nil)
