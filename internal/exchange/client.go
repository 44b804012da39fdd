// Package exchange implements the venue REST and WebSocket clients.
//
// The REST client (Client) talks to the venue API for order management:
//   - PlaceOrders:  POST   /orders        — batch-place signed orders
//   - CancelOrders: DELETE /orders        — cancel specific orders by client ID
//   - CancelAll:    DELETE /cancel-all    — emergency cancel everything for a market
//   - Login:        POST   /auth/session  — bootstrap L2 creds from L1 wallet auth
//
// Order and cancel requests are rate-limited via per-category TokenBuckets
// (login is not). Every request is automatically retried on 5xx errors and
// authenticated with L2 HMAC headers (except login, which uses L1 EIP-712
// headers).
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"

	"perpquoter/internal/config"
	"perpquoter/pkg/types"
)

// Client is the venue REST API client. It wraps a resty HTTP client with
// rate limiting, retry, and auth.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.API.RESTBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     NewRateLimiter(),
		dryRun: cfg.DryRun,
		logger: logger,
	}
}

// PendingOrder is the signing input for a single order leg of a place batch.
type PendingOrder struct {
	ClientOrderID int64
	Market        string
	Side          types.Side
	Price         string
	Size          string
	Leverage      int
	Salt          string
	Expiration    string
}

func (c *Client) buildOrderRequest(o PendingOrder) (types.OrderRequest, error) {
	sig, err := c.auth.SignOrder(o.Market, o.Side, o.Price, o.Size, o.Leverage, o.Salt, o.Expiration)
	if err != nil {
		return types.OrderRequest{}, fmt.Errorf("sign order: %w", err)
	}
	return types.OrderRequest{
		ClientOrderID: o.ClientOrderID,
		Market:        o.Market,
		Side:          o.Side,
		Price:         o.Price,
		Size:          o.Size,
		Leverage:      o.Leverage,
		Salt:          o.Salt,
		Expiration:    o.Expiration,
		Signature:     "0x" + common.Bytes2Hex(sig),
	}, nil
}

// PlaceOrders submits a batch of signed orders.
func (c *Client) PlaceOrders(ctx context.Context, orders []PendingOrder) ([]types.PlaceResult, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	if c.dryRun {
		c.logger.Info("dry-run: would place orders", "count", len(orders))
		results := make([]types.PlaceResult, len(orders))
		for i, o := range orders {
			results[i] = types.PlaceResult{ClientOrderID: o.ClientOrderID, Accepted: true}
		}
		return results, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	reqs := make([]types.OrderRequest, len(orders))
	for i, o := range orders {
		req, err := c.buildOrderRequest(o)
		if err != nil {
			return nil, err
		}
		reqs[i] = req
	}

	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("marshal orders: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/orders", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var results []types.PlaceResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&results).
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("place orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("place orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	return results, nil
}

// CancelOrders cancels orders by client order ID.
func (c *Client) CancelOrders(ctx context.Context, clientOrderIDs []int64) (*types.CancelResult, error) {
	if len(clientOrderIDs) == 0 {
		return &types.CancelResult{}, nil
	}
	if c.dryRun {
		c.logger.Info("dry-run: would cancel orders", "count", len(clientOrderIDs))
		return &types.CancelResult{Cancelled: clientOrderIDs}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	payload := struct {
		ClientOrderIDs []int64 `json:"client_order_ids"`
	}{ClientOrderIDs: clientOrderIDs}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal cancel request: %w", err)
	}
	headers, err := c.auth.L2Headers("DELETE", "/orders", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.CancelResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Delete("/orders")
	if err != nil {
		return nil, fmt.Errorf("cancel orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Info("orders cancelled", "count", len(result.Cancelled))
	return &result, nil
}

// CancelAll cancels every open order for a market in one request. The
// startup cleanup and the kill switch do not use it; both cancel by client
// order id through CancelOrders.
func (c *Client) CancelAll(ctx context.Context, market string) (*types.CancelResult, error) {
	if c.dryRun {
		c.logger.Info("dry-run: would cancel all orders", "market", market)
		return &types.CancelResult{}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	body := fmt.Sprintf(`{"market":%q}`, market)
	headers, err := c.auth.L2Headers("DELETE", "/cancel-all", body)
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.CancelResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Delete("/cancel-all")
	if err != nil {
		return nil, fmt.Errorf("cancel all: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel all: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Warn("all orders cancelled", "market", market, "count", len(result.Cancelled))
	return &result, nil
}

// Login derives L2 session credentials via L1 authentication.
func (c *Client) Login(ctx context.Context) (*types.LoginResponse, error) {
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}

	var result types.LoginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Post("/auth/session")
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("login: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.auth.SetCredentials(Credentials{ApiKey: result.ApiKey, Secret: result.Secret, Passphrase: result.Passphrase})
	c.logger.Info("session established", "api_key", result.ApiKey)
	return &result, nil
}
