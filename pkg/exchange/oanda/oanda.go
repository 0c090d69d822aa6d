// Package oanda implements the brokerage and market data interfaces on top of the
// OANDA v3 REST API.
package oanda

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/logger"
	"github.com/samber/lo"
)

const (
	PracticeURL = "https://api-fxpractice.oanda.com/v3/"
	LiveURL     = "https://api-fxtrade.oanda.com/v3/"

	EnvironmentPractice = "practice"
	EnvironmentLive     = "live"
)

var _ core.Exchange = (*Client)(nil)

// BaseURLFor returns the API root of an account environment. Anything other than
// live goes to the practice server.
func BaseURLFor(environment string) string {
	if strings.EqualFold(environment, EnvironmentLive) {
		return LiveURL
	}
	return PracticeURL
}

// APIError is a non-success answer to a read request
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("oanda: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("oanda: %d: %s", e.Status, e.Message)
}

// Client talks to one OANDA environment. The account passed to each call supplies
// the bearer token, so one client serves every account of that environment.
type Client struct {
	client  *resty.Client
	log     logger.Logger
	timeout time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the HTTP timeout of every request
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying transport. The timeout set through
// WithTimeout applies whatever the option order.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.client = resty.NewWithClient(httpClient).
			SetBaseURL(c.client.BaseURL).
			SetHeader("Accept", "application/json")
	}
}

// NewClient creates a client for the given API root
func NewClient(baseURL string, log logger.Logger, options ...Option) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	client := &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "application/json"),
		log:     log,
		timeout: 30 * time.Second,
	}

	for _, option := range options {
		option(client)
	}

	client.client.SetTimeout(client.timeout)
	return client
}

type errorBody struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (c *Client) request(ctx context.Context, account core.Account) *resty.Request {
	return c.client.R().
		SetContext(ctx).
		SetAuthToken(account.Token).
		SetError(&errorBody{})
}

func apiError(resp *resty.Response) error {
	body, _ := resp.Error().(*errorBody)
	if body == nil || body.ErrorMessage == "" {
		return &APIError{Status: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
	}
	return &APIError{Status: resp.StatusCode(), Code: body.ErrorCode, Message: body.ErrorMessage}
}

// rejection turns a failed mutation into a broker-rejected result
func rejection(resp *resty.Response) core.OrderResult {
	return core.OrderResult{Accepted: false, BrokerError: apiError(resp).Error()}
}

// decimals parses the decimal strings of one payload and keeps the first failure,
// so a malformed field fails the whole read instead of turning into zero
type decimals struct {
	err error
}

func (d *decimals) float(field, value string) float64 {
	if d.err != nil {
		return 0
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		d.err = fmt.Errorf("%w: invalid %s %q", core.ErrDataUnavailable, field, value)
		return 0
	}
	return parsed
}

// units arrive as decimal strings such as "-10000.0"
func (d *decimals) units(field, value string) int64 {
	return int64(d.float(field, value))
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(core.RoundPrice(price), 'f', -1, 64)
}

type trade struct {
	ID           string `json:"id"`
	Instrument   string `json:"instrument"`
	Price        string `json:"price"`
	CurrentUnits string `json:"currentUnits"`
	UnrealizedPL string `json:"unrealizedPL"`
}

// OpenTrade returns the first open trade of the account on the instrument
func (c *Client) OpenTrade(ctx context.Context, account core.Account, instrument string) (*core.Position, error) {
	var result struct {
		Trades []trade `json:"trades"`
	}

	resp, err := c.request(ctx, account).
		SetResult(&result).
		SetPathParam("account", account.ID).
		Get("/accounts/{account}/openTrades")
	if err != nil {
		return nil, fmt.Errorf("open trades of %s: %w", account.ID, err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}

	found, ok := lo.Find(result.Trades, func(t trade) bool { return t.Instrument == instrument })
	if !ok {
		return nil, nil
	}

	var parse decimals
	position := &core.Position{
		TradeID:      found.ID,
		AccountID:    account.ID,
		Instrument:   found.Instrument,
		Units:        parse.units("currentUnits", found.CurrentUnits),
		Price:        parse.float("price", found.Price),
		UnrealizedPL: parse.float("unrealizedPL", found.UnrealizedPL),
	}
	if parse.err != nil {
		return nil, fmt.Errorf("trade %s of %s: %w", found.ID, account.ID, parse.err)
	}

	return position, nil
}

type order struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Instrument string `json:"instrument"`
	Units      string `json:"units"`
	Price      string `json:"price"`
}

// PendingOrders returns the resting orders of the account. Dependent orders such as
// stop loss and take profit carry no instrument and are skipped.
func (c *Client) PendingOrders(ctx context.Context, account core.Account) ([]core.PendingOrder, error) {
	var result struct {
		Orders []order `json:"orders"`
	}

	resp, err := c.request(ctx, account).
		SetResult(&result).
		SetPathParam("account", account.ID).
		Get("/accounts/{account}/pendingOrders")
	if err != nil {
		return nil, fmt.Errorf("pending orders of %s: %w", account.ID, err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}

	var parse decimals
	orders := lo.FilterMap(result.Orders, func(o order, _ int) (core.PendingOrder, bool) {
		if o.Instrument == "" {
			return core.PendingOrder{}, false
		}
		return core.PendingOrder{
			ID:         o.ID,
			AccountID:  account.ID,
			Instrument: o.Instrument,
			Type:       o.Type,
			Side:       core.SideFromUnits(parse.units("units", o.Units)),
			Price:      parse.float("price", o.Price),
		}, true
	})
	if parse.err != nil {
		return nil, fmt.Errorf("pending orders of %s: %w", account.ID, parse.err)
	}

	return orders, nil
}

type priceBound struct {
	Price string `json:"price"`
}

type marketOrderRequest struct {
	Order struct {
		Type             string      `json:"type"`
		Instrument       string      `json:"instrument"`
		Units            string      `json:"units"`
		TimeInForce      string      `json:"timeInForce"`
		PositionFill     string      `json:"positionFill"`
		StopLossOnFill   *priceBound `json:"stopLossOnFill,omitempty"`
		TakeProfitOnFill *priceBound `json:"takeProfitOnFill,omitempty"`
	} `json:"order"`
}

type orderResponse struct {
	OrderCreateTransaction struct {
		ID string `json:"id"`
	} `json:"orderCreateTransaction"`
	OrderFillTransaction *struct {
		ID          string `json:"id"`
		TradeOpened *struct {
			TradeID string `json:"tradeID"`
		} `json:"tradeOpened"`
	} `json:"orderFillTransaction"`
	OrderCancelTransaction *struct {
		Reason string `json:"reason"`
	} `json:"orderCancelTransaction"`
}

// PlaceMarketOrder submits a fill-or-kill market order with optional stop loss and
// take profit attached on fill
func (c *Client) PlaceMarketOrder(ctx context.Context, account core.Account,
	marketOrder core.MarketOrder) (core.OrderResult, error) {

	var body marketOrderRequest
	body.Order.Type = "MARKET"
	body.Order.Instrument = marketOrder.Instrument
	body.Order.Units = strconv.FormatInt(marketOrder.Side.SignedUnits(marketOrder.Units), 10)
	body.Order.TimeInForce = "FOK"
	body.Order.PositionFill = "DEFAULT"
	if marketOrder.StopLoss != nil {
		body.Order.StopLossOnFill = &priceBound{Price: formatPrice(*marketOrder.StopLoss)}
	}
	if marketOrder.TakeProfit != nil {
		body.Order.TakeProfitOnFill = &priceBound{Price: formatPrice(*marketOrder.TakeProfit)}
	}

	var result orderResponse
	resp, err := c.request(ctx, account).
		SetBody(body).
		SetResult(&result).
		SetPathParam("account", account.ID).
		Post("/accounts/{account}/orders")
	if err != nil {
		return core.OrderResult{}, fmt.Errorf("place order on %s: %w", account.ID, err)
	}
	if resp.IsError() {
		return rejection(resp), nil
	}

	orderResult := core.OrderResult{OrderID: result.OrderCreateTransaction.ID}
	switch {
	case result.OrderCancelTransaction != nil:
		orderResult.BrokerError = result.OrderCancelTransaction.Reason
	case result.OrderFillTransaction != nil:
		orderResult.Accepted = true
		if result.OrderFillTransaction.TradeOpened != nil {
			orderResult.TradeID = result.OrderFillTransaction.TradeOpened.TradeID
		}
	default:
		orderResult.Accepted = true
	}

	c.log.Debugf("order %s on %s: accepted=%t %s", orderResult.OrderID, account.ID,
		orderResult.Accepted, orderResult.BrokerError)
	return orderResult, nil
}

// CancelOrder cancels a pending order
func (c *Client) CancelOrder(ctx context.Context, account core.Account, orderID string) (core.OrderResult, error) {
	resp, err := c.request(ctx, account).
		SetPathParams(map[string]string{"account": account.ID, "order": orderID}).
		Put("/accounts/{account}/orders/{order}/cancel")
	if err != nil {
		return core.OrderResult{}, fmt.Errorf("cancel order %s on %s: %w", orderID, account.ID, err)
	}
	if resp.IsError() {
		result := rejection(resp)
		result.OrderID = orderID
		return result, nil
	}

	return core.OrderResult{Accepted: true, OrderID: orderID}, nil
}

// CloseTrade closes an open trade in full
func (c *Client) CloseTrade(ctx context.Context, account core.Account, tradeID string) (core.OrderResult, error) {
	resp, err := c.request(ctx, account).
		SetBody(map[string]string{"units": "ALL"}).
		SetPathParams(map[string]string{"account": account.ID, "trade": tradeID}).
		Put("/accounts/{account}/trades/{trade}/close")
	if err != nil {
		return core.OrderResult{}, fmt.Errorf("close trade %s on %s: %w", tradeID, account.ID, err)
	}
	if resp.IsError() {
		result := rejection(resp)
		result.TradeID = tradeID
		return result, nil
	}

	return core.OrderResult{Accepted: true, TradeID: tradeID}, nil
}

type candle struct {
	Time     time.Time `json:"time"`
	Volume   float64   `json:"volume"`
	Complete bool      `json:"complete"`
	Mid      struct {
		O string `json:"o"`
		H string `json:"h"`
		L string `json:"l"`
		C string `json:"c"`
	} `json:"mid"`
}

// Candles returns the latest mid-price candles of the instrument, oldest first
func (c *Client) Candles(ctx context.Context, account core.Account, instrument, timeframe string,
	count int) ([]core.Candle, error) {

	var result struct {
		Candles []candle `json:"candles"`
	}

	resp, err := c.request(ctx, account).
		SetResult(&result).
		SetPathParam("instrument", instrument).
		SetQueryParams(map[string]string{
			"count":       strconv.Itoa(count),
			"granularity": timeframe,
			"price":       "M",
		}).
		Get("/instruments/{instrument}/candles")
	if err != nil {
		return nil, fmt.Errorf("%s %s candles: %w", instrument, timeframe, err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}

	var parse decimals
	candles := lo.Map(result.Candles, func(k candle, _ int) core.Candle {
		return core.Candle{
			Instrument: instrument,
			Timeframe:  timeframe,
			Time:       k.Time,
			Open:       parse.float("open", k.Mid.O),
			High:       parse.float("high", k.Mid.H),
			Low:        parse.float("low", k.Mid.L),
			Close:      parse.float("close", k.Mid.C),
			Volume:     k.Volume,
			Complete:   k.Complete,
		}
	})
	if parse.err != nil {
		return nil, fmt.Errorf("%s %s candles: %w", instrument, timeframe, parse.err)
	}

	return candles, nil
}

// Pricing returns the best bid and ask of the instrument as seen by the account
func (c *Client) Pricing(ctx context.Context, account core.Account, instrument string) (core.Pricing, error) {
	var result struct {
		Prices []struct {
			Instrument string       `json:"instrument"`
			Bids       []priceBound `json:"bids"`
			Asks       []priceBound `json:"asks"`
		} `json:"prices"`
	}

	resp, err := c.request(ctx, account).
		SetResult(&result).
		SetPathParam("account", account.ID).
		SetQueryParam("instruments", instrument).
		Get("/accounts/{account}/pricing")
	if err != nil {
		return core.Pricing{}, fmt.Errorf("%s pricing: %w", instrument, err)
	}
	if resp.IsError() {
		return core.Pricing{}, apiError(resp)
	}

	if len(result.Prices) == 0 || len(result.Prices[0].Bids) == 0 || len(result.Prices[0].Asks) == 0 {
		return core.Pricing{}, fmt.Errorf("%w: no price for %s", core.ErrDataUnavailable, instrument)
	}

	var parse decimals
	price := result.Prices[0]
	pricing := core.Pricing{
		Instrument: instrument,
		Bid:        parse.float("bid", price.Bids[0].Price),
		Ask:        parse.float("ask", price.Asks[0].Price),
	}
	if parse.err != nil {
		return core.Pricing{}, fmt.Errorf("%s pricing: %w", instrument, parse.err)
	}

	return pricing, nil
}
