package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-print"
	"github.com/pharmacare/go-session"
)

const (
	defaultTimeout        = 15 * time.Second
	maxResponseBytes      = 4 << 20
	pharmacyLoginEndpoint = "/auth/pharmacy/login"
	myPharmaciesEndpoint  = "/pharmacies/mine"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     session.Logger
	Backoff    session.Backoff
	// Where a 401 sends the user, split by area.
	LoginPath         string
	PharmacyLoginPath string
	PharmacyHome      string
}

// Client is the REST client of the portal. Authenticated calls carry the
// bearer of the bound Manager, and a 401 clears that session.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     session.Logger
	backoff    session.Backoff
	manager    *session.Manager

	loginPath         string
	pharmacyLoginPath string
	pharmacyHome      string
}

// New returns a Client bound to m.
func New(m *session.Manager, cfg Config) *Client {
	c := &Client{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:        cfg.HTTPClient,
		logger:            cfg.Logger,
		backoff:           cfg.Backoff,
		manager:           m,
		loginPath:         cfg.LoginPath,
		pharmacyLoginPath: cfg.PharmacyLoginPath,
		pharmacyHome:      cfg.PharmacyHome,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.logger == nil {
		c.logger = session.NopLogger{}
	}
	if c.backoff.MaxAttempts == 0 {
		c.backoff = session.DefaultBackoff()
	}
	if c.loginPath == "" {
		c.loginPath = "/login"
	}
	if c.pharmacyLoginPath == "" {
		c.pharmacyLoginPath = "/pharmacy/login"
	}
	if c.pharmacyHome == "" {
		c.pharmacyHome = "/pharmacy/dashboard"
	}
	return c
}

// Do sends an authenticated JSON request and decodes a 2xx body into out.
// A 401 invalidates the session and the returned error carries the login
// entry point, see LoginRedirect.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	if token := c.manager.BearerToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	status, body, err := c.roundTrip(req)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		redirect := c.loginFor(ctx, path)
		rerr := &ResponseError{
			Method:     method,
			Path:       path,
			Status:     status,
			Message:    backendMessage(body),
			RedirectTo: redirect,
			Err:        withMessage(ErrUnauthorized, "", nil),
		}
		c.logger.Warn("%s %s answered 401, clearing session", method, path)
		c.manager.Invalidate(ctx, rerr)
		return rerr
	}

	if status < 200 || status > 299 {
		message := backendMessage(body)
		return &ResponseError{
			Method:  method,
			Path:    path,
			Status:  status,
			Message: message,
			Err:     withMessage(ErrRequestFailed, message, nil),
		}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return withMessage(session.ErrUnparseableResponse, "", err)
	}
	c.logger.Debug("%s %s: %s", method, path, print.MaybePrettyJSON(out))
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, withMessage(ErrRequestFailed, "unable to encode request", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, withMessage(ErrRequestFailed, "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) roundTrip(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, withMessage(session.ErrBackendUnavailable, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, withMessage(session.ErrBackendUnavailable, "", err)
	}
	return resp.StatusCode, body, nil
}

// loginFor picks the login entry point for a rejected request: pharmacy
// endpoints and pharmacy pages go to the pharmacy login.
func (c *Client) loginFor(ctx context.Context, path string) string {
	if strings.Contains(path, "/pharmac") || strings.HasPrefix(session.PagePath(ctx), "/pharmacy") {
		return c.pharmacyLoginPath
	}
	return c.loginPath
}

func backendMessage(body []byte) string {
	var eb session.ErrorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	return eb.Message
}
