package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a minimal REST client for the brokerage OpenAPI. It carries no
// retry logic of its own; callers wrap throttleable calls in a Guard.
// HTTPClient is injectable so tests can point it at httptest.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Limiter    RateLimiter
}

// NewDefaultHTTPClient provides an http.Client with a sane timeout.
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// Level is one side of the book at a single price.
type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Orderbook is a depth-limited book snapshot for one instrument.
type Orderbook struct {
	FIGI              string  `json:"figi"`
	Asks              []Level `json:"asks"`
	Bids              []Level `json:"bids"`
	LastPrice         float64 `json:"lastPrice"`
	ClosePrice        float64 `json:"closePrice"`
	MinPriceIncrement float64 `json:"minPriceIncrement"`
}

// Instrument is the broker's static view of one tradable security.
type Instrument struct {
	FIGI     string `json:"figi"`
	Ticker   string `json:"ticker"`
	Currency string `json:"currency"`
	Lot      int    `json:"lot"`
}

// OpenOrder is one resting order as the broker reports it.
type OpenOrder struct {
	OrderID       string  `json:"orderId"`
	FIGI          string  `json:"figi"`
	Operation     string  `json:"operation"` // Buy / Sell
	Status        string  `json:"status"`
	Price         float64 `json:"price"`
	RequestedLots int     `json:"requestedLots"`
}

// Operation is one entry from the broker's operation history.
type Operation struct {
	ID            string    `json:"id"`
	FIGI          string    `json:"figi"`
	OperationType string    `json:"operationType"` // Buy / Sell
	Status        string    `json:"status"`        // Done / Decline / Progress
	Date          time.Time `json:"date"`
}

type envelope struct {
	Payload json.RawMessage `json:"payload"`
}

// Orderbook fetches the book for figi at the given depth.
func (c *Client) Orderbook(figi string, depth int) (Orderbook, error) {
	var ob Orderbook
	q := url.Values{"figi": {figi}, "depth": {strconv.Itoa(depth)}}
	if err := c.get("/market/orderbook", q, &ob); err != nil {
		return Orderbook{}, fmt.Errorf("orderbook %s: %w", figi, err)
	}
	return ob, nil
}

// InstrumentByFIGI resolves static instrument metadata.
func (c *Client) InstrumentByFIGI(figi string) (Instrument, error) {
	var inst Instrument
	q := url.Values{"figi": {figi}}
	if err := c.get("/market/search/by-figi", q, &inst); err != nil {
		return Instrument{}, fmt.Errorf("search by figi %s: %w", figi, err)
	}
	return inst, nil
}

// Stocks lists the whole tradable universe.
func (c *Client) Stocks() ([]Instrument, error) {
	var payload struct {
		Instruments []Instrument `json:"instruments"`
	}
	if err := c.get("/market/stocks", nil, &payload); err != nil {
		return nil, fmt.Errorf("stocks: %w", err)
	}
	return payload.Instruments, nil
}

// OpenOrders lists all currently resting orders on the account.
func (c *Client) OpenOrders() ([]OpenOrder, error) {
	var orders []OpenOrder
	if err := c.get("/orders", nil, &orders); err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	return orders, nil
}

type limitOrderRequest struct {
	Lots      int     `json:"lots"`
	Operation string  `json:"operation"`
	Price     float64 `json:"price"`
}

type limitOrderResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// PlaceLimitOrder submits a limit order and returns the broker order id.
// clientID rides along as an idempotency key for the attempt.
func (c *Client) PlaceLimitOrder(figi, operation string, lots int, price float64, clientID string) (string, error) {
	body, err := json.Marshal(limitOrderRequest{Lots: lots, Operation: operation, Price: price})
	if err != nil {
		return "", err
	}
	q := url.Values{"figi": {figi}}
	if clientID != "" {
		q.Set("requestId", clientID)
	}
	var resp limitOrderResponse
	if err := c.post("/orders/limit-order", q, body, &resp); err != nil {
		return "", fmt.Errorf("limit order %s: %w", figi, err)
	}
	return resp.OrderID, nil
}

// CancelOrder asks the broker to pull a resting order.
func (c *Client) CancelOrder(orderID string) error {
	q := url.Values{"orderId": {orderID}}
	if err := c.post("/orders/cancel", q, nil, nil); err != nil {
		return fmt.Errorf("cancel %s: %w", orderID, err)
	}
	return nil
}

// Operations lists operation history inside [from, to].
func (c *Client) Operations(from, to time.Time) ([]Operation, error) {
	q := url.Values{
		"from": {from.Format(time.RFC3339)},
		"to":   {to.Format(time.RFC3339)},
	}
	var payload struct {
		Operations []Operation `json:"operations"`
	}
	if err := c.get("/operations", q, &payload); err != nil {
		return nil, fmt.Errorf("operations: %w", err)
	}
	return payload.Operations, nil
}

func (c *Client) get(path string, q url.Values, out any) error {
	return c.do(http.MethodGet, path, q, nil, out)
}

func (c *Client) post(path string, q url.Values, body []byte, out any) error {
	return c.do(http.MethodPost, path, q, body, out)
}

func (c *Client) do(method, path string, q url.Values, body []byte, out any) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
	endpoint := c.BaseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequest(method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrThrottled
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("%w: status %d", ErrTerminal, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return json.Unmarshal(env.Payload, out)
}
