package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"losslessMarket/internal/retry"
)

const DefaultHermesURL = "https://hermes.pyth.network"

// ErrNoUpdate is returned when the service answers without any update payload.
var ErrNoUpdate = errors.New("price service returned no update data")

// HermesConfig configures the price service client.
type HermesConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// HermesClient fetches signed price-update payloads from a Pyth Hermes endpoint.
type HermesClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// Price is one parsed feed price from the update response.
type Price struct {
	ID          string          `json:"id"`
	Price       decimal.Decimal `json:"price"`
	Conf        decimal.Decimal `json:"conf"`
	Expo        int32           `json:"expo"`
	PublishTime int64           `json:"publish_time"`
}

// PriceUpdate holds the update blobs for resolveMarket and the parsed prices.
type PriceUpdate struct {
	Data   [][]byte
	Prices []Price
}

type latestResponse struct {
	Binary struct {
		Encoding string   `json:"encoding"`
		Data     []string `json:"data"`
	} `json:"binary"`
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

func NewHermesClient(cfg HermesConfig, logger *zap.Logger) *HermesClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHermesURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HermesClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		logger:     logger,
	}
}

// LatestPriceUpdate fetches the latest signed update for the given feed ids.
func (c *HermesClient) LatestPriceUpdate(ctx context.Context, priceIDs ...string) (PriceUpdate, error) {
	if len(priceIDs) == 0 {
		return PriceUpdate{}, fmt.Errorf("at least one price id is required")
	}

	query := url.Values{}
	for _, id := range priceIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if !strings.HasPrefix(id, "0x") {
			id = "0x" + id
		}
		query.Add("ids[]", id)
	}
	query.Set("encoding", "hex")
	endpoint := c.baseURL + "/v2/updates/price/latest?" + query.Encode()

	var body []byte
	err := retry.Do(ctx, retry.Policy{MaxRetries: c.maxRetries, Backoff: c.backoff}, func(ctx context.Context) error {
		var err error
		body, err = c.get(ctx, endpoint)
		if err != nil {
			c.logger.Warn("price update fetch failed", zap.Error(err), zap.Strings("price_ids", priceIDs))
		}
		return err
	})
	if err != nil {
		return PriceUpdate{}, err
	}

	var resp latestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return PriceUpdate{}, fmt.Errorf("decode price update: %w", err)
	}
	return toPriceUpdate(resp)
}

func toPriceUpdate(resp latestResponse) (PriceUpdate, error) {
	if len(resp.Binary.Data) == 0 {
		return PriceUpdate{}, ErrNoUpdate
	}
	out := PriceUpdate{Data: make([][]byte, 0, len(resp.Binary.Data))}
	for _, blob := range resp.Binary.Data {
		if !strings.HasPrefix(blob, "0x") {
			blob = "0x" + blob
		}
		data, err := hexutil.Decode(blob)
		if err != nil {
			return PriceUpdate{}, fmt.Errorf("decode update blob: %w", err)
		}
		out.Data = append(out.Data, data)
	}

	for _, parsed := range resp.Parsed {
		raw, err := decimal.NewFromString(parsed.Price.Price)
		if err != nil {
			return PriceUpdate{}, fmt.Errorf("parse price for %s: %w", parsed.ID, err)
		}
		conf := decimal.Zero
		if parsed.Price.Conf != "" {
			if conf, err = decimal.NewFromString(parsed.Price.Conf); err != nil {
				return PriceUpdate{}, fmt.Errorf("parse conf for %s: %w", parsed.ID, err)
			}
		}
		out.Prices = append(out.Prices, Price{
			ID:          parsed.ID,
			Price:       raw.Shift(parsed.Price.Expo),
			Conf:        conf.Shift(parsed.Price.Expo),
			Expo:        parsed.Price.Expo,
			PublishTime: parsed.Price.PublishTime,
		})
	}
	return out, nil
}

// statusError is a non-2xx response. 429 and 5xx are retryable.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

func (c *HermesClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		err := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, retry.Permanent(err)
	}
	return body, nil
}
