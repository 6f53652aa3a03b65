// Package rest fetches historical klines over the exchange REST API.
// Used once at startup to bootstrap the candle buffer before streaming.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ethtrend/internal/model"
)

// DefaultBaseURL is the Binance USDⓈ-M futures REST endpoint.
const DefaultBaseURL = "https://fapi.binance.com"

// maxLimit is the exchange-side cap on klines per request.
const maxLimit = 1000

// Client is a thin klines REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a klines client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchKlines retrieves up to limit historical candles for symbol/interval,
// oldest first. Rows that fail numeric parsing or basic OHLC sanity are
// skipped with a log line; they are never returned.
func (c *Client) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/fapi/v1/klines?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("klines: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("klines: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("klines: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines: API error %d: %s", resp.StatusCode, string(body))
	}

	// Each row is a fixed-position array: [openTime, open, high, low, close,
	// volume, ...]. Only indices 0-5 are used; numerics arrive as strings.
	var rows [][]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("klines: parse: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseKlineRow(row)
		if err != nil {
			log.Printf("[rest] skipping kline row %d: %v", i, err)
			continue
		}
		candles = append(candles, c)
	}

	return candles, nil
}

func parseKlineRow(row []interface{}) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, fmt.Errorf("short row: %d fields", len(row))
	}

	openTime, ok := row[0].(float64)
	if !ok {
		return model.Candle{}, fmt.Errorf("bad open time %v", row[0])
	}

	vals := make([]float64, 5) // open, high, low, close, volume
	for i := 0; i < 5; i++ {
		v, err := parseDecimal(row[i+1])
		if err != nil {
			return model.Candle{}, err
		}
		vals[i] = v
	}

	c := model.Candle{
		OpenTime: int64(openTime),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
		Closed:   true, // historical rows are always closed
	}
	if !c.Valid() {
		return model.Candle{}, fmt.Errorf("invalid OHLC values: %+v", c)
	}
	return c, nil
}

func parseDecimal(v interface{}) (float64, error) {
	switch t := v.(type) {
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("bad decimal %q", t)
		}
		return f, nil
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("bad decimal field %v", v)
	}
}
