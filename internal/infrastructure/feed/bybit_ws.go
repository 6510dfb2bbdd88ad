package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	BybitBaseURL = "https://api.bybit.com"
	BybitWSURL   = "wss://stream.bybit.com/v5/public/spot"
)

// BybitFeed maintains the latest spot prices over the public ticker stream,
// with a REST snapshot for bootstrap. Read-only market data: it never
// touches the trading API.
type BybitFeed struct {
	baseURL string
	wsURL   string
	client  *http.Client
	logger  *zap.Logger

	mu         sync.Mutex
	wsConn     *websocket.Conn
	prices     map[string]float64
	subscribed map[string]bool
}

func NewBybitFeed(baseURL, wsURL string, logger *zap.Logger) *BybitFeed {
	if baseURL == "" {
		baseURL = BybitBaseURL
	}
	if wsURL == "" {
		wsURL = BybitWSURL
	}
	return &BybitFeed{
		baseURL:    baseURL,
		wsURL:      wsURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		prices:     make(map[string]float64),
		subscribed: make(map[string]bool),
	}
}

// LatestPrices returns a copy of the last observed price per pair.
func (f *BybitFeed) LatestPrices(ctx context.Context) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]float64, len(f.prices))
	for k, v := range f.prices {
		out[k] = v
	}
	return out, nil
}

// LoadSnapshot fetches current prices over REST for the given pairs so the
// first cycle does not run blind while the stream warms up.
func (f *BybitFeed) LoadSnapshot(ctx context.Context, pairs []string) error {
	for _, pair := range pairs {
		price, err := f.fetchPrice(ctx, pair)
		if err != nil {
			f.logger.Warn("snapshot fetch failed", zap.String("pair", pair), zap.Error(err))
			continue
		}
		f.mu.Lock()
		f.prices[pair] = price
		f.mu.Unlock()
	}
	return nil
}

func (f *BybitFeed) fetchPrice(ctx context.Context, pair string) (float64, error) {
	path := "/v5/market/tickers?category=spot&symbol=" + pair
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var result struct {
		RetCode int `json:"retCode"`
		Result  struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	if len(result.Result.List) == 0 {
		return 0, fmt.Errorf("symbol not found: %s", pair)
	}
	return strconv.ParseFloat(result.Result.List[0].LastPrice, 64)
}

// Subscribe opens the stream on first use and subscribes to tickers for any
// pairs not yet streamed.
func (f *BybitFeed) Subscribe(pairs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var fresh []string
	for _, p := range pairs {
		if !f.subscribed[p] {
			fresh = append(fresh, p)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	if f.wsConn == nil {
		c, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
		if err != nil {
			return err
		}
		f.wsConn = c
		go f.readLoop(c)
	}

	args := make([]interface{}, len(fresh))
	for i, p := range fresh {
		args[i] = "tickers." + p
	}
	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	}
	if err := f.wsConn.WriteJSON(subMsg); err != nil {
		return err
	}
	for _, p := range fresh {
		f.subscribed[p] = true
	}
	return nil
}

func (f *BybitFeed) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		f.mu.Lock()
		if f.wsConn == conn {
			f.wsConn = nil
			// Force a resubscribe on the next Subscribe call.
			f.subscribed = make(map[string]bool)
		}
		f.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			f.logger.Warn("feed stream read error", zap.Error(err))
			return
		}

		var event struct {
			Topic string `json:"topic"`
			Data  struct {
				Symbol    string `json:"symbol"`
				LastPrice string `json:"lastPrice"`
			} `json:"data"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			f.logger.Debug("feed unmarshal error", zap.Error(err))
			continue
		}
		if !strings.HasPrefix(event.Topic, "tickers.") || event.Data.LastPrice == "" {
			continue
		}

		price, err := strconv.ParseFloat(event.Data.LastPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		symbol := event.Data.Symbol
		if symbol == "" {
			symbol = strings.TrimPrefix(event.Topic, "tickers.")
		}

		f.mu.Lock()
		f.prices[symbol] = price
		f.mu.Unlock()
	}
}
