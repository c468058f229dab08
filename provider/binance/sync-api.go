package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/xonx4l/orderbook/domain"
)

const (
	DefaultRESTEndpoint = "https://api.binance.com"
	depthPath           = "/api/v3/depth"
	maxResponseBytes    = 16 << 20
)

var (
	ErrTimeout          = errors.New("binance: request timed out")
	ErrMalformedPayload = errors.New("binance: malformed payload")
)

// APIError is the error body Binance returns with non-2xx responses.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: http %d: code=%d msg=%s", e.Status, e.Code, e.Msg)
}

// BinanceSyncAPI fetches depth snapshots from the REST API.
type BinanceSyncAPI struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

func NewBinanceSyncAPI(endpoint string, client *http.Client, logger zerolog.Logger) *BinanceSyncAPI {
	if endpoint == "" {
		endpoint = DefaultRESTEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &BinanceSyncAPI{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
		logger:   logger.With().Str("component", "binance-rest").Logger(),
	}
}

// updateID accepts lastUpdateId both as a JSON number and as a string.
type updateID uint64

func (id *updateID) UnmarshalJSON(b []byte) error {
	raw := string(b)
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}

	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("lastUpdateId %s: %w", b, err)
	}
	*id = updateID(v)
	return nil
}

type depthResponse struct {
	LastUpdateID *updateID  `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

func (api *BinanceSyncAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", symbol.Exchange())
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.endpoint+depthPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := api.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, err)
		}
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Msg == "" {
			apiErr.Msg = http.StatusText(resp.StatusCode)
		}
		return nil, apiErr
	}

	var response depthResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: depth snapshot: %s", ErrMalformedPayload, err)
	}
	if response.LastUpdateID == nil {
		return nil, fmt.Errorf("%w: depth snapshot without lastUpdateId", ErrMalformedPayload)
	}

	bids, err := domain.ParsePriceLevels(response.Bids)
	if err != nil {
		return nil, fmt.Errorf("%w: bids: %s", ErrMalformedPayload, err)
	}
	asks, err := domain.ParsePriceLevels(response.Asks)
	if err != nil {
		return nil, fmt.Errorf("%w: asks: %s", ErrMalformedPayload, err)
	}

	api.logger.Debug().
		Str("symbol", symbol.Exchange()).
		Uint64("last_update_id", uint64(*response.LastUpdateID)).
		Msg("depth snapshot fetched")

	return &domain.OrderBookSnapshot{
		Source:       domain.OrderBookSource_Provider,
		LastUpdateID: uint64(*response.LastUpdateID),
		Bids:         bids,
		Asks:         asks,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
