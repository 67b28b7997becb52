// Package btc38 implements the venue adapter for the BTC38 exchange. The
// public data API is unauthenticated; account endpoints are authenticated
// with an md5 digest over the access key, account id, secret key, and a unix
// timestamp, sent as form fields.
package btc38

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "http://api.btc38.com/v1/"

const (
	submitSuccessMarker = "succ"
	depthFailureMarker  = "fail"
	noOrderMarker       = "no_order"
)

// Client is the low-level REST client for the BTC38 API.
type Client struct {
	baseURL    string
	accessKey  string
	secretKey  string
	accountID  string
	httpClient *http.Client
}

// NewClient creates a BTC38 client. baseURL falls back to DefaultBaseURL when
// empty.
func NewClient(baseURL, accessKey, secretKey, accountID string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		accessKey: accessKey,
		secretKey: secretKey,
		accountID: accountID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Depth is the raw order book: depth-ordered [price, volume] pairs, best
// level first on both sides.
type Depth struct {
	Bids [][]float64 `json:"bids"`
	Asks [][]float64 `json:"asks"`
}

// GetDepth fetches the order book for the given coin/market pair, e.g.
// ("bts", "cny"). The endpoint signals failure in-band with a "fail" body.
func (c *Client) GetDepth(ctx context.Context, coin, mkType string) (Depth, error) {
	query := url.Values{}
	query.Set("c", coin)
	query.Set("mk_type", mkType)

	body, err := c.get(ctx, "depth.php?"+query.Encode())
	if err != nil {
		return Depth{}, fmt.Errorf("btc38: get depth: %w", err)
	}
	if len(body) == 0 {
		return Depth{}, fmt.Errorf("btc38: get depth: empty response")
	}
	if strings.Contains(string(body), depthFailureMarker) {
		return Depth{}, fmt.Errorf("btc38: get depth: venue reported failure: %s", body)
	}

	var depth Depth
	if err := json.Unmarshal(body, &depth); err != nil {
		return Depth{}, fmt.Errorf("btc38: decode depth: %w", err)
	}
	return depth, nil
}

// AccountBalance is the authenticated balance response. BTC38 returns
// balances as strings.
type AccountBalance struct {
	CNYBalance json.Number `json:"cny_balance"`
	BTSBalance json.Number `json:"bts_balance"`
}

// GetMyBalance fetches the account balance.
func (c *Client) GetMyBalance(ctx context.Context) (AccountBalance, error) {
	body, err := c.postSigned(ctx, "getMyBalance.php", url.Values{})
	if err != nil {
		return AccountBalance{}, fmt.Errorf("btc38: get balance: %w", err)
	}

	var bal AccountBalance
	if err := json.Unmarshal(body, &bal); err != nil {
		return AccountBalance{}, fmt.Errorf("btc38: decode balance: %w", err)
	}
	return bal, nil
}

// SubmitOrder places a limit order. orderType is 1 for buy and 2 for sell.
// Price and amount are formatted to the venue's accepted precision (5 for
// CNY prices, 6 for amounts). The venue confirms acceptance with a body
// containing "succ"; anything else is a rejection.
func (c *Client) SubmitOrder(ctx context.Context, orderType int, mkType string, price, amount float64, coin string) error {
	params := url.Values{}
	params.Set("type", strconv.Itoa(orderType))
	params.Set("mk_type", mkType)
	params.Set("price", strconv.FormatFloat(price, 'f', 5, 64))
	params.Set("amount", strconv.FormatFloat(amount, 'f', 6, 64))
	params.Set("coinname", coin)

	body, err := c.postSigned(ctx, "submitOrder.php", params)
	if err != nil {
		return fmt.Errorf("btc38: submit order: %w", err)
	}
	if !strings.Contains(string(body), submitSuccessMarker) {
		return fmt.Errorf("btc38: submit order not accepted: %s", body)
	}
	return nil
}

// Order is a resting order from getOrderList.php.
type Order struct {
	ID     json.Number `json:"id"`
	Type   json.Number `json:"type"` // 1 buy, 2 sell
	Price  json.Number `json:"price"`
	Amount json.Number `json:"amount"`
	Time   string      `json:"time"`
}

// GetOrderList lists this account's open orders for the coin. An empty book
// is signalled in-band with a "no_order" body.
func (c *Client) GetOrderList(ctx context.Context, coin string) ([]Order, error) {
	params := url.Values{}
	params.Set("coinname", coin)

	body, err := c.postSigned(ctx, "getOrderList.php", params)
	if err != nil {
		return nil, fmt.Errorf("btc38: get order list: %w", err)
	}
	if strings.Contains(string(body), noOrderMarker) {
		return nil, nil
	}

	var orders []Order
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("btc38: decode order list: %w", err)
	}
	return orders, nil
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

// postSigned sends a form POST with the md5 authentication fields added.
func (c *Client) postSigned(ctx context.Context, path string, params url.Values) ([]byte, error) {
	stamp, digest := c.sign()
	params.Set("key", c.accessKey)
	params.Set("time", strconv.FormatInt(stamp, 10))
	params.Set("md5", digest)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

// sign produces the md5 digest BTC38 expects:
// md5("<access>_<account>_<secret>_<unixtime>").
func (c *Client) sign() (int64, string) {
	stamp := time.Now().Unix()
	mdt := fmt.Sprintf("%s_%s_%s_%d", c.accessKey, c.accountID, c.secretKey, stamp)
	sum := md5.Sum([]byte(mdt))
	return stamp, hex.EncodeToString(sum[:])
}
