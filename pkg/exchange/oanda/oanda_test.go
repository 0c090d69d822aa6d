package oanda

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/logger/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var account = core.Account{ID: "101-004-1", Token: "secret"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	return NewClient(server.URL+"/v3/", zerolog.Nop())
}

func TestBaseURLFor(t *testing.T) {
	assert.Equal(t, LiveURL, BaseURLFor("LIVE"))
	assert.Equal(t, PracticeURL, BaseURLFor("practice"))
	assert.Equal(t, PracticeURL, BaseURLFor(""))
}

func TestClient_OpenTrade(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/accounts/101-004-1/openTrades", r.URL.Path)
		_, _ = io.WriteString(w, `{"trades":[
			{"id":"11","instrument":"GBP_USD","price":"1.27","currentUnits":"500","unrealizedPL":"1.5"},
			{"id":"12","instrument":"EUR_USD","price":"1.10012","currentUnits":"-10000","unrealizedPL":"-25.0000"}
		]}`)
	})

	position, err := client.OpenTrade(context.Background(), account, "EUR_USD")
	require.NoError(t, err)
	require.NotNil(t, position)
	assert.Equal(t, "12", position.TradeID)
	assert.Equal(t, int64(-10000), position.Units)
	assert.Equal(t, core.SideTypeSell, position.Side())
	assert.Equal(t, -25.0, position.UnrealizedPL)

	position, err = client.OpenTrade(context.Background(), account, "USD_JPY")
	require.NoError(t, err)
	assert.Nil(t, position)
}

func TestClient_ReadError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"errorMessage":"Insufficient authorization to perform request."}`)
	})

	_, err := client.OpenTrade(context.Background(), account, "EUR_USD")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Message, "Insufficient authorization")
}

func TestClient_PendingOrders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/accounts/101-004-1/pendingOrders", r.URL.Path)
		_, _ = io.WriteString(w, `{"orders":[
			{"id":"20","type":"LIMIT","instrument":"EUR_USD","units":"1000","price":"1.10500"},
			{"id":"21","type":"STOP_LOSS","tradeID":"12","price":"1.09"}
		]}`)
	})

	orders, err := client.PendingOrders(context.Background(), account)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "20", orders[0].ID)
	assert.Equal(t, core.SideTypeBuy, orders[0].Side)
	assert.Equal(t, 1.105, orders[0].Price)
}

func TestClient_PlaceMarketOrder(t *testing.T) {
	var body map[string]map[string]any

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/accounts/101-004-1/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{
			"orderCreateTransaction":{"id":"30"},
			"orderFillTransaction":{"id":"31","tradeOpened":{"tradeID":"31"}}
		}`)
	})

	stop := 1.0987
	result, err := client.PlaceMarketOrder(context.Background(), account, core.MarketOrder{
		Instrument: "EUR_USD",
		Side:       core.SideTypeSell,
		Units:      -20000,
		StopLoss:   &stop,
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, "30", result.OrderID)
	assert.Equal(t, "31", result.TradeID)

	order := body["order"]
	assert.Equal(t, "MARKET", order["type"])
	assert.Equal(t, "FOK", order["timeInForce"])
	assert.Equal(t, "DEFAULT", order["positionFill"])
	assert.Equal(t, "-20000", order["units"])
	assert.Equal(t, map[string]any{"price": "1.0987"}, order["stopLossOnFill"])
	assert.NotContains(t, order, "takeProfitOnFill")
}

func TestClient_PlaceMarketOrderNotFilled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{
			"orderCreateTransaction":{"id":"40"},
			"orderCancelTransaction":{"reason":"MARKET_HALTED"}
		}`)
	})

	result, err := client.PlaceMarketOrder(context.Background(), account, core.MarketOrder{
		Instrument: "EUR_USD", Side: core.SideTypeBuy, Units: 1000,
	})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, "MARKET_HALTED", result.BrokerError)
}

func TestClient_PlaceMarketOrderRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"errorCode":"UNITS_INVALID","errorMessage":"Order units are invalid"}`)
	})

	result, err := client.PlaceMarketOrder(context.Background(), account, core.MarketOrder{
		Instrument: "EUR_USD", Side: core.SideTypeBuy, Units: 1000,
	})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Contains(t, result.BrokerError, "UNITS_INVALID")
}

func TestClient_CancelAndClose(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/v3/accounts/101-004-1/trades/99/close" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"errorMessage":"The Trade specified does not exist"}`)
			return
		}
		_, _ = io.WriteString(w, `{}`)
	})

	result, err := client.CancelOrder(context.Background(), account, "20")
	require.NoError(t, err)
	assert.True(t, result.Accepted)

	result, err = client.CloseTrade(context.Background(), account, "12")
	require.NoError(t, err)
	assert.True(t, result.Accepted)

	result, err = client.CloseTrade(context.Background(), account, "99")
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Contains(t, result.BrokerError, "does not exist")

	assert.Equal(t, []string{
		"/v3/accounts/101-004-1/orders/20/cancel",
		"/v3/accounts/101-004-1/trades/12/close",
		"/v3/accounts/101-004-1/trades/99/close",
	}, paths)
}

func TestClient_Candles(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/instruments/EUR_USD/candles", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		assert.Equal(t, "M5", r.URL.Query().Get("granularity"))
		assert.Equal(t, "M", r.URL.Query().Get("price"))
		_, _ = io.WriteString(w, `{"candles":[
			{"time":"2024-03-01T12:00:00.000000000Z","volume":120,"complete":true,"mid":{"o":"1.10000","h":"1.10100","l":"1.09900","c":"1.10050"}},
			{"time":"2024-03-01T12:05:00.000000000Z","volume":30,"complete":false,"mid":{"o":"1.10050","h":"1.10060","l":"1.10040","c":"1.10040"}}
		]}`)
	})

	candles, err := client.Candles(context.Background(), account, "EUR_USD", core.TimeframeM5, 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Complete)
	assert.InDelta(t, 5.0, candles[0].PipDelta(), 1e-6)
	assert.False(t, candles[1].Complete)
	assert.Equal(t, 12, candles[0].Time.Hour())
}

func TestClient_Pricing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/accounts/101-004-1/pricing", r.URL.Path)
		assert.Equal(t, "EUR_USD", r.URL.Query().Get("instruments"))
		_, _ = io.WriteString(w, `{"prices":[{"instrument":"EUR_USD",
			"bids":[{"price":"1.10510","liquidity":1000000}],
			"asks":[{"price":"1.10530","liquidity":1000000}]}]}`)
	})

	pricing, err := client.Pricing(context.Background(), account, "EUR_USD")
	require.NoError(t, err)
	assert.Equal(t, 1.1051, pricing.Bid)
	assert.Equal(t, 1.1053, pricing.Ask)
	assert.InDelta(t, 1.1052, pricing.Mid(), 1e-9)
}

func TestClient_PricingEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"prices":[]}`)
	})

	_, err := client.Pricing(context.Background(), account, "EUR_USD")
	require.ErrorIs(t, err, core.ErrDataUnavailable)
}

func TestClient_MalformedDecimals(t *testing.T) {
	tt := []struct {
		name string
		body string
		call func(*testing.T, *Client) error
	}{
		{
			name: "trade profit",
			body: `{"trades":[{"id":"12","instrument":"EUR_USD","price":"1.1","currentUnits":"-10000","unrealizedPL":"bogus"}]}`,
			call: func(t *testing.T, c *Client) error {
				position, err := c.OpenTrade(context.Background(), account, "EUR_USD")
				assert.Nil(t, position)
				return err
			},
		},
		{
			name: "trade units",
			body: `{"trades":[{"id":"12","instrument":"EUR_USD","price":"1.1","currentUnits":"","unrealizedPL":"-2"}]}`,
			call: func(t *testing.T, c *Client) error {
				_, err := c.OpenTrade(context.Background(), account, "EUR_USD")
				return err
			},
		},
		{
			name: "pending order price",
			body: `{"orders":[{"id":"20","type":"LIMIT","instrument":"EUR_USD","units":"1000","price":"n/a"}]}`,
			call: func(t *testing.T, c *Client) error {
				orders, err := c.PendingOrders(context.Background(), account)
				assert.Nil(t, orders)
				return err
			},
		},
		{
			name: "candle close",
			body: `{"candles":[{"time":"2024-03-01T12:00:00Z","volume":1,"complete":true,"mid":{"o":"1.1","h":"1.2","l":"1.0","c":"x"}}]}`,
			call: func(t *testing.T, c *Client) error {
				candles, err := c.Candles(context.Background(), account, "EUR_USD", core.TimeframeM1, 1)
				assert.Nil(t, candles)
				return err
			},
		},
		{
			name: "pricing",
			body: `{"prices":[{"instrument":"EUR_USD","bids":[{"price":""}],"asks":[{"price":"n/a"}]}]}`,
			call: func(t *testing.T, c *Client) error {
				pricing, err := c.Pricing(context.Background(), account, "EUR_USD")
				assert.Zero(t, pricing)
				return err
			},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, tc.body)
			})

			require.ErrorIs(t, tc.call(t, client), core.ErrDataUnavailable)
		})
	}
}

func TestClient_TimeoutSurvivesHTTPClient(t *testing.T) {
	client := NewClient(PracticeURL, zerolog.Nop(),
		WithTimeout(2*time.Second), WithHTTPClient(&http.Client{}))
	assert.Equal(t, 2*time.Second, client.client.GetClient().Timeout)
	assert.Equal(t, "https://api-fxpractice.oanda.com/v3", client.client.BaseURL)

	client = NewClient(PracticeURL, zerolog.Nop(), WithHTTPClient(&http.Client{}))
	assert.Equal(t, 30*time.Second, client.client.GetClient().Timeout)
}
