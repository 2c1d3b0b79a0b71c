package dexalot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dexquote/marketmaker/pkg/models"
)

// Client is the exchange surface the engine depends on. Implementations own
// all connectivity, signing, and unit conversion concerns.
type Client interface {
	GetPairInfo(ctx context.Context, pair string) (*models.PairInfo, error)
	GetOrderBook(ctx context.Context, pair string, levels, aggregatedOrders int) (*models.OrderBook, error)
	GetOpenOrders(ctx context.Context, trader, pair string) ([]models.OrderRecord, error)
	PlaceOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderRef, error)
	CancelOrder(ctx context.Context, pair, orderID string) error
	CancelAllOrders(ctx context.Context, pair string, orderIDs []string) error
}

// RESTClient talks to the exchange trading API. Every call is rate limited,
// carries its own timeout, and retries transient faults with exponential
// backoff before giving up.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	auth       Authenticator
	limiter    *rate.Limiter
	maxRetries int
	timeout    time.Duration
	logger     *logrus.Logger

	pairInfo *models.PairInfo // cached after the first metadata fetch
}

type RESTClientOptions struct {
	BaseURL    string
	Auth       Authenticator
	Timeout    time.Duration
	MaxRetries int
	RateLimit  float64
	Logger     *logrus.Logger
}

func NewRESTClient(opts RESTClientOptions) *RESTClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}
	return &RESTClient{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/") + "/",
		httpClient: &http.Client{Timeout: opts.Timeout},
		auth:       opts.Auth,
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), int(opts.RateLimit)+1),
		maxRetries: opts.MaxRetries,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
}

// pairResponse mirrors the trading/pairs payload.
type pairResponse struct {
	Pair                 string `json:"pair"`
	Base                 string `json:"base"`
	Quote                string `json:"quote"`
	BaseAddress          string `json:"baseaddress"`
	QuoteAddress         string `json:"quoteaddress"`
	BaseDisplayDecimals  int    `json:"basedisplaydecimals"`
	QuoteDisplayDecimals int    `json:"quotedisplaydecimals"`
	BaseEVMDecimals      int    `json:"base_evmdecimals"`
	QuoteEVMDecimals     int    `json:"quote_evmdecimals"`
	MinTradeAmount       string `json:"mintrade_amnt"`
	MaxTradeAmount       string `json:"maxtrade_amnt"`
	Status               string `json:"status"`
}

func (c *RESTClient) GetPairInfo(ctx context.Context, pair string) (*models.PairInfo, error) {
	var pairs []pairResponse
	if err := c.get(ctx, "trading/pairs", nil, &pairs); err != nil {
		return nil, err
	}

	for _, p := range pairs {
		if p.Pair != pair || p.Status != "deployed" {
			continue
		}
		minAmt, err := decimal.NewFromString(p.MinTradeAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid min trade amount %q: %w", p.MinTradeAmount, err)
		}
		maxAmt, err := decimal.NewFromString(p.MaxTradeAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid max trade amount %q: %w", p.MaxTradeAmount, err)
		}
		info := &models.PairInfo{
			Pair:                 p.Pair,
			BaseSymbol:           p.Base,
			QuoteSymbol:          p.Quote,
			BaseAddress:          p.BaseAddress,
			QuoteAddress:         p.QuoteAddress,
			BaseDecimals:         p.BaseEVMDecimals,
			QuoteDecimals:        p.QuoteEVMDecimals,
			BaseDisplayDecimals:  p.BaseDisplayDecimals,
			QuoteDisplayDecimals: p.QuoteDisplayDecimals,
			MinTradeAmount:       minAmt,
			MaxTradeAmount:       maxAmt,
		}
		c.pairInfo = info
		return info, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrPairNotFound, pair)
}

// bookResponse mirrors the trading/orderbooks payload: parallel arrays of
// base-unit prices and quantities per side, best levels first.
type bookResponse struct {
	BuyBook  bookSide `json:"buybook"`
	SellBook bookSide `json:"sellbook"`
}

type bookSide struct {
	Prices     []string `json:"prices"`
	Quantities []string `json:"quantities"`
}

func (c *RESTClient) GetOrderBook(ctx context.Context, pair string, levels, aggregatedOrders int) (*models.OrderBook, error) {
	info, err := c.cachedPairInfo(ctx, pair)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("pair", pair)
	params.Set("nprices", fmt.Sprintf("%d", levels))
	params.Set("norders", fmt.Sprintf("%d", aggregatedOrders))

	var book bookResponse
	if err := c.get(ctx, "trading/orderbooks", params, &book); err != nil {
		return nil, err
	}

	bids, err := convertBookSide(book.BuyBook, info.QuoteDecimals, info.BaseDecimals)
	if err != nil {
		return nil, fmt.Errorf("invalid buy book: %w", err)
	}
	asks, err := convertBookSide(book.SellBook, info.QuoteDecimals, info.BaseDecimals)
	if err != nil {
		return nil, fmt.Errorf("invalid sell book: %w", err)
	}

	return &models.OrderBook{Pair: pair, Bids: bids, Asks: asks}, nil
}

func convertBookSide(side bookSide, quoteDecimals, baseDecimals int) ([]models.BookLevel, error) {
	if len(side.Prices) != len(side.Quantities) {
		return nil, fmt.Errorf("price/quantity length mismatch: %d vs %d", len(side.Prices), len(side.Quantities))
	}
	levels := make([]models.BookLevel, 0, len(side.Prices))
	for i := range side.Prices {
		price, err := fromBaseUnits(side.Prices[i], quoteDecimals)
		if err != nil {
			return nil, err
		}
		qty, err := fromBaseUnits(side.Quantities[i], baseDecimals)
		if err != nil {
			return nil, err
		}
		if price.IsZero() {
			continue // empty padding level
		}
		levels = append(levels, models.BookLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

// openOrdersResponse mirrors trading/openorders/params.
type openOrdersResponse struct {
	Rows []orderRow `json:"rows"`
}

type orderRow struct {
	ID             string `json:"id"`
	Pair           string `json:"pair"`
	TraderAddress  string `json:"traderaddress"`
	Side           int    `json:"side"`
	Type           int    `json:"type"`
	Price          string `json:"price"`
	Quantity       string `json:"quantity"`
	QuantityFilled string `json:"quantityfilled"`
	Status         int    `json:"status"`
	UpdateTS       string `json:"update_ts"`
}

func (c *RESTClient) GetOpenOrders(ctx context.Context, trader, pair string) ([]models.OrderRecord, error) {
	info, err := c.cachedPairInfo(ctx, pair)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("traderaddress", trader)
	params.Set("pair", pair)
	params.Set("itemsperpage", "50")
	params.Set("pageno", "1")

	var resp openOrdersResponse
	if err := c.get(ctx, "trading/openorders/params", params, &resp); err != nil {
		return nil, err
	}

	orders := make([]models.OrderRecord, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		order, err := rowToRecord(row, info)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func rowToRecord(row orderRow, info *models.PairInfo) (models.OrderRecord, error) {
	side, err := models.ParseSide(row.Side)
	if err != nil {
		return models.OrderRecord{}, fmt.Errorf("order %s: %w", row.ID, err)
	}
	status, err := models.ParseOrderStatus(row.Status)
	if err != nil {
		return models.OrderRecord{}, fmt.Errorf("order %s: %w", row.ID, err)
	}
	price, err := fromBaseUnits(row.Price, info.QuoteDecimals)
	if err != nil {
		return models.OrderRecord{}, fmt.Errorf("order %s price: %w", row.ID, err)
	}
	qty, err := fromBaseUnits(row.Quantity, info.BaseDecimals)
	if err != nil {
		return models.OrderRecord{}, fmt.Errorf("order %s quantity: %w", row.ID, err)
	}
	filled, err := fromBaseUnits(row.QuantityFilled, info.BaseDecimals)
	if err != nil {
		return models.OrderRecord{}, fmt.Errorf("order %s filled: %w", row.ID, err)
	}

	updatedAt, _ := time.Parse(time.RFC3339, row.UpdateTS)

	return models.OrderRecord{
		ID:             row.ID,
		Pair:           row.Pair,
		Trader:         row.TraderAddress,
		Side:           side,
		Type:           models.OrderType(row.Type),
		Price:          price,
		Quantity:       qty,
		QuantityFilled: filled,
		Status:         status,
		UpdatedAt:      updatedAt,
	}, nil
}

type placeOrderRequest struct {
	Pair     string `json:"pair"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Side     int    `json:"side"`
	Type     int    `json:"type"`
}

type placeOrderResponse struct {
	ID     string `json:"id"`
	TxHash string `json:"txhash"`
}

func (c *RESTClient) PlaceOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderRef, error) {
	info, err := c.cachedPairInfo(ctx, req.Pair)
	if err != nil {
		return nil, err
	}

	if req.Quantity.LessThan(info.MinTradeAmount) || req.Quantity.GreaterThan(info.MaxTradeAmount) {
		return nil, fmt.Errorf("%w: size %s not in [%s, %s]", ErrSizeOutOfRange,
			req.Quantity, info.MinTradeAmount, info.MaxTradeAmount)
	}

	body := placeOrderRequest{
		Pair:     req.Pair,
		Price:    toBaseUnits(req.Price, info.QuoteDisplayDecimals, info.QuoteDecimals),
		Quantity: toBaseUnits(req.Quantity, info.BaseDisplayDecimals, info.BaseDecimals),
		Side:     int(req.Side),
		Type:     int(req.Type),
	}

	var resp placeOrderResponse
	if err := c.post(ctx, "trading/orders", body, &resp); err != nil {
		return nil, err
	}
	return &models.OrderRef{ID: resp.ID, TxHash: resp.TxHash}, nil
}

type cancelRequest struct {
	Pair     string   `json:"pair"`
	OrderIDs []string `json:"orderids"`
}

// CancelOrder returns only after the exchange acknowledges the cancel, so a
// caller that cancels before placing never holds both orders resting.
func (c *RESTClient) CancelOrder(ctx context.Context, pair, orderID string) error {
	return c.post(ctx, "trading/orders/cancel", cancelRequest{Pair: pair, OrderIDs: []string{orderID}}, nil)
}

func (c *RESTClient) CancelAllOrders(ctx context.Context, pair string, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	return c.post(ctx, "trading/orders/cancelall", cancelRequest{Pair: pair, OrderIDs: orderIDs}, nil)
}

func (c *RESTClient) cachedPairInfo(ctx context.Context, pair string) (*models.PairInfo, error) {
	if c.pairInfo != nil && c.pairInfo.Pair == pair {
		return c.pairInfo, nil
	}
	return c.GetPairInfo(ctx, pair)
}

func (c *RESTClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, params, nil, out)
}

func (c *RESTClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, payload, out)
}

// do executes one API call with rate limiting and bounded retry. Exhausting
// the retry budget fails the call; the enclosing reconciliation pass is never
// retried here.
func (c *RESTClient) do(ctx context.Context, method, path string, params url.Values, body []byte, out interface{}) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff(attempt)
			c.logger.WithFields(logrus.Fields{
				"path":    path,
				"attempt": attempt,
				"delay":   delay,
			}).Warn("Retrying exchange request")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.doOnce(callCtx, method, endpoint, path, body, out)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if apiErr, ok := err.(*APIError); ok && !retriableStatus(apiErr.StatusCode) {
			return err
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}

	return fmt.Errorf("max retries on %s: %w", path, lastErr)
}

func (c *RESTClient) doOnce(ctx context.Context, method, endpoint, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.auth != nil {
		if err := c.auth.AddAuthHeaders(req, method, "/"+path); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(data))}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// backoff returns an exponential delay with jitter for the given attempt.
func backoff(attempt int) time.Duration {
	base := 250 * time.Millisecond
	d := base << uint(attempt-1)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}

// fromBaseUnits converts a raw integer amount string into display units.
func fromBaseUnits(raw string, decimals int) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid base unit amount %q: %w", raw, err)
	}
	return d.Shift(int32(-decimals)), nil
}

// toBaseUnits rounds a display amount to the pair's display precision and
// scales it into the integer base units the exchange expects.
func toBaseUnits(amount decimal.Decimal, displayDecimals, decimals int) string {
	return amount.Round(int32(displayDecimals)).Shift(int32(decimals)).Truncate(0).String()
}
