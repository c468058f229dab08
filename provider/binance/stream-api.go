package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/xonx4l/orderbook/domain"
)

const depthUpdateEvent = "depthUpdate"

var ErrSymbolMismatch = errors.New("binance: event for another symbol")

// TopicSubscriber is the part of BinanceStreamClient the stream API needs.
type TopicSubscriber interface {
	Subscribe(topic string) (*domain.Subscription[[]byte], error)
}

type BinanceStreamAPI struct {
	streamClient TopicSubscriber
	// Optional depth stream speed suffix, e.g. "100ms".
	updateSpeed string
	logger      zerolog.Logger
}

type DepthUpdateData struct {
	Event         string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateId uint64     `json:"U"`
	FinalUpdateId uint64     `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

func NewBinanceStreamAPI(client TopicSubscriber, updateSpeed string, logger zerolog.Logger) *BinanceStreamAPI {
	return &BinanceStreamAPI{
		streamClient: client,
		updateSpeed:  updateSpeed,
		logger:       logger.With().Str("component", "binance-stream-api").Logger(),
	}
}

func DepthTopic(symbol *domain.MarketSymbol, updateSpeed string) string {
	topic := fmt.Sprintf("%s@depth", symbol.Join(""))
	if updateSpeed != "" {
		topic += "@" + updateSpeed
	}
	return topic
}

// DepthDiffStream subscribes to the diff depth stream of symbol. Messages
// that cannot be decoded are logged and dropped; they never reach the
// returned stream. The stream is closed when the underlying connection is
// closed or after Unsubscribe.
func (bs *BinanceStreamAPI) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.OrderBookUpdate], error) {
	topic := DepthTopic(symbol, bs.updateSpeed)
	subscribtion, err := bs.streamClient.Subscribe(topic)
	if err != nil {
		return nil, err
	}

	s := make(chan *domain.OrderBookUpdate)
	stop := make(chan struct{})

	go func() {
		defer close(s)

		for {
			select {
			case <-stop:
				return
			case msg, ok := <-subscribtion.Stream:
				if !ok {
					return
				}

				update, err := decodeDepthUpdate(msg, symbol)
				if err != nil {
					bs.logger.Warn().Err(err).Str("topic", topic).Msg("dropping depth update")
					continue
				}

				select {
				case s <- update:
				case <-stop:
					return
				}
			}
		}
	}()

	var once sync.Once
	return &domain.Subscription[*domain.OrderBookUpdate]{
		Stream: s,
		Unsubscribe: func() {
			once.Do(func() {
				close(stop)
				subscribtion.Unsubscribe()
			})
		},
		Topic:        topic,
		Disconnected: subscribtion.Disconnected,
	}, nil
}

func decodeDepthUpdate(msg []byte, symbol *domain.MarketSymbol) (*domain.OrderBookUpdate, error) {
	var data DepthUpdateData
	if err := json.Unmarshal(msg, &data); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}

	if data.Event != depthUpdateEvent {
		return nil, fmt.Errorf("%w: unexpected event type %q", ErrMalformedPayload, data.Event)
	}
	if !strings.EqualFold(data.Symbol, symbol.Exchange()) {
		return nil, fmt.Errorf("%w: got %q, subscribed to %q", ErrSymbolMismatch, data.Symbol, symbol.Exchange())
	}
	if data.FirstUpdateId == 0 || data.FinalUpdateId < data.FirstUpdateId {
		return nil, fmt.Errorf("%w: invalid update range [%d,%d]", ErrMalformedPayload, data.FirstUpdateId, data.FinalUpdateId)
	}

	bids, err := domain.ParsePriceLevels(data.Bids)
	if err != nil {
		return nil, fmt.Errorf("%w: bids: %s", ErrMalformedPayload, err)
	}
	asks, err := domain.ParsePriceLevels(data.Asks)
	if err != nil {
		return nil, fmt.Errorf("%w: asks: %s", ErrMalformedPayload, err)
	}

	update := domain.NewOrderBookUpdate(bids, asks, data.FirstUpdateId, data.FinalUpdateId, symbol)
	update.EventType = data.Event
	update.EventTime = data.EventTime

	return update, nil
}
