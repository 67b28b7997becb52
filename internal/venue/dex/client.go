// Package dex implements the venue adapter for the BitShares DEX. Orders and
// queries go through a locally running cli_wallet, which speaks JSON-RPC 2.0
// over a websocket and handles key management and transaction signing itself.
package dex

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a synchronous JSON-RPC client for cli_wallet. The wallet answers
// requests strictly in order, so a single connection guarded by a mutex is
// enough; there is no need for an id-demultiplexing read loop.
type Client struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
}

// Dial connects to the cli_wallet websocket endpoint, e.g.
// "ws://127.0.0.1:8092".
func Dial(ctx context.Context, walletURL string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, walletURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dex: dial wallet %s: %w", walletURL, err)
	}
	return &Client{conn: conn}, nil
}

// Close tears down the websocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one request/response round trip. result may be nil when the
// caller does not care about the payload.
func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := rpcRequest{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params}

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("dex: %s: set write deadline: %w", method, err)
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return fmt.Errorf("dex: %s: set read deadline: %w", method, err)
		}
	}

	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("dex: %s: write: %w", method, err)
	}

	var resp rpcResponse
	if err := c.conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("dex: %s: read: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("dex: %s: wallet error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("dex: %s: response id %d does not match request id %d", method, resp.ID, req.ID)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("dex: %s: decode result: %w", method, err)
	}
	return nil
}

// Unlock opens the wallet for signing. Must be called once after Dial before
// any order is placed.
func (c *Client) Unlock(ctx context.Context, password string) error {
	return c.call(ctx, "unlock", []any{password}, nil)
}

// BookLevel is one aggregated price level as cli_wallet reports it. All
// numeric fields arrive as decimal strings.
type BookLevel struct {
	Price json.Number `json:"price"`
	Quote json.Number `json:"quote"`
	Base  json.Number `json:"base"`
}

// OrderBook is the get_order_book result, best level first on both sides.
type OrderBook struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}

// GetOrderBook fetches the aggregated book for base priced in quote.
func (c *Client) GetOrderBook(ctx context.Context, base, quote string, limit int) (OrderBook, error) {
	var book OrderBook
	if err := c.call(ctx, "get_order_book", []any{base, quote, limit}, &book); err != nil {
		return OrderBook{}, err
	}
	return book, nil
}

// AssetAmount is a raw chain amount: an integer count of the asset's
// smallest unit plus the asset's object id.
type AssetAmount struct {
	Amount  json.Number `json:"amount"`
	AssetID string      `json:"asset_id"`
}

// ListAccountBalances returns the account's holdings in raw chain units.
func (c *Client) ListAccountBalances(ctx context.Context, account string) ([]AssetAmount, error) {
	var balances []AssetAmount
	if err := c.call(ctx, "list_account_balances", []any{account}, &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

// SellAsset places a limit order selling amountToSell of symbolToSell for at
// least minToReceive of symbolToReceive. A zero expiry leaves the order open
// until cancelled. Amounts are decimal strings at the asset's precision.
func (c *Client) SellAsset(ctx context.Context, account, amountToSell, symbolToSell, minToReceive, symbolToReceive string, expiry time.Duration, fillOrKill bool) error {
	expirySec := int(expiry / time.Second)
	return c.call(ctx, "sell_asset",
		[]any{account, amountToSell, symbolToSell, minToReceive, symbolToReceive, expirySec, fillOrKill, true},
		nil)
}

// LimitOrder is a resting order on the account, in raw chain amounts. The
// sell price is the ratio base/quote the order was placed at; base is the
// asset being sold.
type LimitOrder struct {
	ID        string      `json:"id"`
	Expires   string      `json:"expiration"`
	ForSale   json.Number `json:"for_sale"`
	SellPrice struct {
		Base  AssetAmount `json:"base"`
		Quote AssetAmount `json:"quote"`
	} `json:"sell_price"`
}

// GetAccountLimitOrders lists the account's resting orders in the given
// market.
func (c *Client) GetAccountLimitOrders(ctx context.Context, account, base, quote string, limit int) ([]LimitOrder, error) {
	var orders []LimitOrder
	if err := c.call(ctx, "get_account_limit_orders", []any{account, base, quote, limit}, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}
