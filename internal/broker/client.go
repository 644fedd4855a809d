// Package broker talks to the execution venue's HTTP and WebSocket APIs.
// The REST client handles TOTP login, limit-order submission, and the
// open-position query; the Stream decodes bar and order-update frames
// into controller events.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"spiderexec/internal/model"

	"github.com/pquerna/otp/totp"
)

// Config configures the broker client.
type Config struct {
	BaseURL    string // REST root, e.g. https://api.broker.example
	WSURL      string // stream endpoint, e.g. wss://stream.broker.example/feed
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string // base32 secret for the 2FA code

	Timeout time.Duration // default 7s
}

var routes = map[string]string{
	"auth.login":   "/rest/auth/v1/login",
	"auth.logout":  "/rest/auth/v1/logout",
	"order.place":  "/rest/secure/v1/orders",
	"order.status": "/rest/secure/v1/orders/",
	"positions":    "/rest/secure/v1/positions",
}

// Client is the REST side of the broker connection. It implements
// model.Venue and model.PositionBook.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	accessToken string
	feedToken   string
}

// NewClient creates a broker client. Call Login before submitting orders.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// FeedToken returns the stream token obtained at login.
func (c *Client) FeedToken() string { return c.feedToken }

// envelope is the broker's standard response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Login generates the current TOTP code and exchanges credentials for
// access and feed tokens.
func (c *Client) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("broker login: totp: %w", err)
	}

	var data struct {
		AccessToken string `json:"accessToken"`
		FeedToken   string `json:"feedToken"`
	}
	err = c.do(ctx, http.MethodPost, "auth.login", map[string]any{
		"clientcode": c.cfg.ClientCode,
		"password":   c.cfg.Password,
		"totp":       code,
	}, &data)
	if err != nil {
		return fmt.Errorf("broker login: %w", err)
	}
	if data.AccessToken == "" {
		return fmt.Errorf("broker login: empty access token")
	}
	c.accessToken = data.AccessToken
	c.feedToken = data.FeedToken
	log.Printf("[broker] logged in as %s", c.cfg.ClientCode)
	return nil
}

// Logout invalidates the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "auth.logout", map[string]any{
		"clientcode": c.cfg.ClientCode,
	}, nil)
}

// SubmitLimit places a limit order and returns the broker order ID.
func (c *Client) SubmitLimit(ctx context.Context, order model.Order) (string, error) {
	var data struct {
		OrderID string `json:"orderId"`
	}
	err := c.do(ctx, http.MethodPost, "order.place", map[string]any{
		"account":    order.Account,
		"instrument": order.Instrument,
		"action":     string(order.Action),
		"ordertype":  "LIMIT",
		"quantity":   order.Qty,
		"price":      order.LimitPrice,
		"tag":        order.Signal,
	}, &data)
	if err != nil {
		return "", fmt.Errorf("submit limit: %w", err)
	}
	if data.OrderID == "" {
		return "", fmt.Errorf("submit limit: no order id in response")
	}
	return data.OrderID, nil
}

// OpenPosition returns the open position for the account/instrument, or
// nil when flat.
func (c *Client) OpenPosition(ctx context.Context, account, instrument string) (*model.Position, error) {
	var data []struct {
		Account    string  `json:"account"`
		Instrument string  `json:"instrument"`
		Side       string  `json:"side"`
		Qty        int     `json:"qty"`
		AvgPrice   float64 `json:"avgPrice"`
	}
	err := c.do(ctx, http.MethodGet, "positions", map[string]any{
		"account":    account,
		"instrument": instrument,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("open position: %w", err)
	}
	for _, p := range data {
		if p.Account != account || p.Instrument != instrument || p.Qty == 0 {
			continue
		}
		side := model.PositionLong
		if strings.EqualFold(p.Side, "SHORT") {
			side = model.PositionShort
		}
		return &model.Position{
			Account:    p.Account,
			Instrument: p.Instrument,
			Side:       side,
			Qty:        p.Qty,
			AvgPrice:   p.AvgPrice,
		}, nil
	}
	return nil, nil
}

func (c *Client) do(ctx context.Context, method, route string, params map[string]any, out any) error {
	uri, ok := routes[route]
	if !ok {
		return fmt.Errorf("unknown route %q", route)
	}
	reqURL := strings.TrimRight(c.cfg.BaseURL, "/") + uri

	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			parts := make([]string, 0, len(params))
			for k, v := range params {
				parts = append(parts, fmt.Sprintf("%s=%v", k, v))
			}
			reqURL += "?" + strings.Join(parts, "&")
		}
	} else {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-PrivateKey", c.cfg.APIKey)
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("bad response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Status {
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
