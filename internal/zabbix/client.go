// Package zabbix implements a monitor.Source backed by the Zabbix JSON-RPC
// API. Each fetch lists the open problems and resolves every one of them to
// its event, hosts and tags.
package zabbix

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
	"github.com/zabbix-problems/zabbix-problems/internal/problem"
)

const (
	// APIPath is appended to the configured host to form the endpoint.
	APIPath        = "/api_jsonrpc.php"
	defaultTimeout = 10 * time.Second
)

type Config struct {
	// Host is a hostname, host:port or a full base URL. A scheme in Host
	// wins over UseTLS.
	Host               string
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Timeout            time.Duration
	Logger             *zap.Logger

	// HTTPClient overrides the transport built from the fields above.
	HTTPClient *http.Client
}

// Client talks to one Zabbix frontend. It logs in lazily and keeps the
// session token across fetches.
type Client struct {
	endpoint string
	username string
	password string
	http     *http.Client
	log      *zap.Logger
	nextID   atomic.Int64

	mu      sync.Mutex
	token   string
	version *Version
}

var _ monitor.Source = (*Client)(nil)

func New(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed frontends
		}
		hc = &http.Client{Timeout: timeout, Transport: transport}
	}
	endpoint := Endpoint(cfg.Host, cfg.UseTLS)
	return &Client{
		endpoint: endpoint,
		username: cfg.Username,
		password: cfg.Password,
		http:     hc,
		log:      log.With(zap.String("endpoint", endpoint)),
	}
}

// Endpoint builds the API URL for host.
func Endpoint(host string, useTLS bool) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.Contains(host, "://") {
		scheme := "http"
		if useTLS {
			scheme = "https"
		}
		host = scheme + "://" + host
	}
	if strings.HasSuffix(host, APIPath) {
		return host
	}
	return host + APIPath
}

func (c *Client) Name() string { return "zabbix" }

// Endpoint returns the API URL the client posts to.
func (c *Client) Endpoint() string { return c.endpoint }

// CheckLogin logs in with the configured credentials, replacing any cached
// session and API version. It is used to validate configuration before
// polling starts.
func (c *Client) CheckLogin(ctx context.Context) error {
	c.mu.Lock()
	c.token = ""
	c.version = nil
	c.mu.Unlock()
	_, err := c.session(ctx)
	return err
}

// Fetch returns one Event per open problem. A problem whose event has
// disappeared between the two calls is skipped.
func (c *Client) Fetch(ctx context.Context) ([]problem.Event, error) {
	cred, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	events, err := c.fetchEvents(ctx, cred)
	if errors.Is(err, monitor.ErrAuthentication) {
		c.log.Info("zabbix session rejected, logging in again", zap.Error(err))
		c.dropToken(cred.token)
		if cred, err = c.session(ctx); err != nil {
			return nil, err
		}
		events, err = c.fetchEvents(ctx, cred)
	}
	if err != nil {
		return nil, err
	}
	return events, nil
}

// APIVersion returns the server's API version, asking for it on first use.
func (c *Client) APIVersion(ctx context.Context) (Version, error) {
	c.mu.Lock()
	cached := c.version
	c.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	// apiinfo.version rejects any credentials.
	var raw string
	if err := c.call(ctx, "apiinfo.version", []string{}, credential{}, &raw); err != nil {
		return Version{}, err
	}
	v, err := ParseVersion(raw)
	if err != nil {
		return Version{}, err
	}
	c.log.Info("zabbix api version", zap.String("version", raw), zap.Bool("bearer_auth", v.bearerAuth()))

	c.mu.Lock()
	c.version = &v
	c.mu.Unlock()
	return v, nil
}

// session returns the cached token, logging in if there is none.
func (c *Client) session(ctx context.Context) (credential, error) {
	v, err := c.APIVersion(ctx)
	if err != nil {
		return credential{}, err
	}
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return credential{token: token, bearer: v.bearerAuth()}, nil
	}

	params := map[string]string{v.loginUserField(): c.username, "password": c.password}
	if err := c.call(ctx, "user.login", params, credential{}, &token); err != nil {
		return credential{}, err
	}
	if token == "" {
		return credential{}, fmt.Errorf("zabbix: user.login returned an empty token: %w", monitor.ErrMalformedResponse)
	}
	c.log.Debug("zabbix login succeeded", zap.String("username", c.username))

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return credential{token: token, bearer: v.bearerAuth()}, nil
}

func (c *Client) dropToken(token string) {
	c.mu.Lock()
	if c.token == token {
		c.token = ""
	}
	c.mu.Unlock()
}

type problemRow struct {
	EventID string `json:"eventid"`
}

type hostRow struct {
	Name string `json:"name"`
}

type tagRow struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

type eventRow struct {
	EventID  string    `json:"eventid"`
	Name     string    `json:"name"`
	Severity string    `json:"severity"`
	Hosts    []hostRow `json:"hosts"`
	Tags     []tagRow  `json:"tags"`
}

func (c *Client) fetchEvents(ctx context.Context, cred credential) ([]problem.Event, error) {
	var problems []problemRow
	if err := c.call(ctx, "problem.get", map[string]any{"output": []string{"eventid"}}, cred, &problems); err != nil {
		return nil, err
	}

	events := make([]problem.Event, 0, len(problems))
	for _, p := range problems {
		if p.EventID == "" {
			return nil, fmt.Errorf("zabbix: problem.get row without eventid: %w", monitor.ErrMalformedResponse)
		}
		params := map[string]any{
			"eventids":    p.EventID,
			"output":      "extend",
			"selectHosts": []string{"name"},
			"selectTags":  "extend",
		}
		var rows []eventRow
		if err := c.call(ctx, "event.get", params, cred, &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			c.log.Debug("problem resolved before its event was read", zap.String("eventid", p.EventID))
			continue
		}
		for _, row := range rows {
			ev, err := c.convert(row)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

func (c *Client) convert(row eventRow) (problem.Event, error) {
	if len(row.Hosts) == 0 {
		return problem.Event{}, fmt.Errorf("zabbix: event %s has no hosts: %w", row.EventID, monitor.ErrMalformedResponse)
	}
	n, err := strconv.Atoi(strings.TrimSpace(row.Severity))
	if err != nil {
		return problem.Event{}, fmt.Errorf("zabbix: event %s severity %q: %w", row.EventID, row.Severity, monitor.ErrMalformedResponse)
	}
	sev := problem.Severity(n)
	if !sev.Valid() {
		c.log.Warn("event severity outside the known range",
			zap.String("eventid", row.EventID),
			zap.Int("severity", n),
		)
	}
	tags := make([]string, 0, len(row.Tags))
	for _, t := range row.Tags {
		tags = append(tags, problem.FormatTag(t.Tag, t.Value))
	}
	return problem.NewEvent(row.EventID, row.Hosts[0].Name, row.Name, sev, tags), nil
}
