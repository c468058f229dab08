package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/recws-org/recws"
	"github.com/rs/zerolog"

	"github.com/xonx4l/orderbook/domain"
	"github.com/xonx4l/orderbook/helpers"
)

const (
	DefaultStreamEndpoint = "wss://stream.binance.com:9443/stream"
	pingDelay             = time.Minute * 9
)

var (
	ErrAlreadySubscribed = errors.New("binance: topic already subscribed")
	ErrClientClosed      = errors.New("binance: stream client closed")
)

// Message is the combined stream envelope.
type Message[T any] struct {
	Stream string `json:"stream"`
	Data   T      `json:"data"`
}

type WebSocketRequestModel struct {
	ReqId  int      `json:"id"`
	Params []string `json:"params"`
	Method string   `json:"method"`
}

type WebSocketError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// WebSocketAckModel is the reply to a SUBSCRIBE/UNSUBSCRIBE request.
type WebSocketAckModel struct {
	ReqId  *int            `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *WebSocketError `json:"error"`
}

// rawEventModel holds the fields used to route events from a raw
// (non-combined) stream connection.
type rawEventModel struct {
	Event     string          `json:"e"`
	EventTime json.RawMessage `json:"E"`
	Symbol    string          `json:"s"`
}

type StreamClientConfig struct {
	Endpoint         string
	HandshakeTimeout time.Duration
	KeepAliveTimeout time.Duration
	// Delay bounds between reconnect attempts.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// Per-topic delivery buffer.
	BufferSize int
	WriteWait  time.Duration
}

func DefaultStreamClientConfig() StreamClientConfig {
	return StreamClientConfig{
		Endpoint:         DefaultStreamEndpoint,
		HandshakeTimeout: 5 * time.Second,
		KeepAliveTimeout: pingDelay,
		ReconnectMin:     500 * time.Millisecond,
		ReconnectMax:     30 * time.Second,
		BufferSize:       1024,
		WriteWait:        time.Second,
	}
}

type subscriptionEntry struct {
	ch           chan []byte
	stop         chan struct{}
	disconnected chan struct{}
}

// BinanceStreamClient multiplexes topics over one reconnecting websocket.
// Every subscribed topic is sent again each time the connection is
// re-established.
type BinanceStreamClient struct {
	cfg           StreamClientConfig
	conn          *recws.RecConn
	subscriptions map[string]*subscriptionEntry
	mu            sync.Mutex
	logger        zerolog.Logger

	done      chan struct{}
	readDone  chan struct{}
	closeOnce sync.Once
}

func NewBinanceStreamClient(cfg StreamClientConfig, logger zerolog.Logger) *BinanceStreamClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultStreamEndpoint
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}

	return &BinanceStreamClient{
		cfg:           cfg,
		subscriptions: make(map[string]*subscriptionEntry),
		logger:        logger.With().Str("component", "binance-stream").Logger(),
		done:          make(chan struct{}),
		readDone:      make(chan struct{}),
	}
}

// Connect dials the endpoint and starts the read loop. The dial itself is
// retried in the background, so a nil error does not mean the connection is
// up yet.
func (c *BinanceStreamClient) Connect() error {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("binance: stream endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("binance: stream endpoint %q: scheme must be ws or wss", c.cfg.Endpoint)
	}

	conn := &recws.RecConn{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		KeepAliveTimeout: c.cfg.KeepAliveTimeout,
		RecIntvlMin:      c.cfg.ReconnectMin,
		RecIntvlMax:      c.cfg.ReconnectMax,
		NonVerbose:       true,
		SubscribeHandler: c.resubscribe,
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.Dial(c.cfg.Endpoint, nil)
	if conn.IsConnected() {
		c.logger.Info().Str("endpoint", c.cfg.Endpoint).Msg("connected")
	} else {
		c.logger.Warn().Err(conn.GetDialError()).Str("endpoint", c.cfg.Endpoint).Msg("not connected yet, retrying in background")
	}

	go c.read()
	return nil
}

// Subscribe registers topic and sends SUBSCRIBE when connected. While
// disconnected the request is deferred to the next reconnect.
func (c *BinanceStreamClient) Subscribe(topic string) (*domain.Subscription[[]byte], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return nil, ErrClientClosed
	default:
	}

	if _, ok := c.subscriptions[topic]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySubscribed, topic)
	}

	entry := &subscriptionEntry{
		ch:           make(chan []byte, c.cfg.BufferSize),
		stop:         make(chan struct{}),
		disconnected: make(chan struct{}, 1),
	}
	c.subscriptions[topic] = entry

	c.logger.Info().Str("topic", topic).Msg("subscribing")
	if err := c.send("SUBSCRIBE", []string{topic}); err != nil {
		if !errors.Is(err, recws.ErrNotConnected) {
			delete(c.subscriptions, topic)
			return nil, fmt.Errorf("failed to send subscribe msg for topic=%s: %w", topic, err)
		}
		c.logger.Debug().Str("topic", topic).Msg("not connected, subscription deferred to reconnect")
	}

	var once sync.Once
	return &domain.Subscription[[]byte]{
		Stream: entry.ch,
		Unsubscribe: func() {
			once.Do(func() {
				c.unSubscribe(topic, entry)
			})
		},
		Topic:        topic,
		Disconnected: entry.disconnected,
	}, nil
}

func (c *BinanceStreamClient) unSubscribe(topic string, entry *subscriptionEntry) {
	close(entry.stop)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscriptions[topic] != entry {
		return
	}
	delete(c.subscriptions, topic)

	c.logger.Info().Str("topic", topic).Msg("unsubscribing")
	if err := c.send("UNSUBSCRIBE", []string{topic}); err != nil && !errors.Is(err, recws.ErrNotConnected) {
		c.logger.Warn().Err(err).Str("topic", topic).Msg("failed to send unsubscribe msg")
	}
}

// Close sends a close frame, stops the read loop and closes every
// subscription stream.
func (c *BinanceStreamClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			c.closeSubscriptions()
			return
		}

		if conn.IsConnected() {
			conn.Shutdown(c.cfg.WriteWait)
		}

		// The read loop returns once the peer answers the close frame.
		select {
		case <-c.readDone:
		case <-time.After(c.cfg.WriteWait):
		}
		conn.Close()
		<-c.readDone

		c.logger.Info().Msg("connection closed")
	})

	return nil
}

func (c *BinanceStreamClient) IsConnected() bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	return conn != nil && conn.IsConnected()
}

// send must be called with mu held.
func (c *BinanceStreamClient) send(method string, topics []string) error {
	if c.conn == nil {
		return recws.ErrNotConnected
	}

	req := WebSocketRequestModel{
		Method: method,
		ReqId:  helpers.RandomReqID(),
		Params: topics,
	}
	c.logger.Debug().Str("request", helpers.ToJsonString(req)).Msg("sending request")

	return c.conn.WriteJSON(req)
}

// resubscribe runs on every successful (re)connect. recws aborts the
// process when this handler fails, so write errors are only logged; the
// read loop notices a dead connection anyway.
func (c *BinanceStreamClient) resubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.subscriptions) == 0 {
		return nil
	}

	topics := make([]string, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		topics = append(topics, topic)
	}

	c.logger.Info().Strs("topics", topics).Msg("connection established, subscribing")
	if err := c.send("SUBSCRIBE", topics); err != nil {
		c.logger.Warn().Err(err).Msg("failed to resubscribe")
	}
	return nil
}

func (c *BinanceStreamClient) read() {
	defer close(c.readDone)
	defer c.closeSubscriptions()

	// connected is true once a message arrived on the current connection.
	connected := false

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if connected && !errors.Is(err, recws.ErrNotConnected) {
				connected = false
				c.notifyDisconnected()
			}

			select {
			case <-c.done:
				return
			case <-time.After(50 * time.Millisecond):
			}

			switch {
			case errors.Is(err, recws.ErrNotConnected):
			case isCloseError(err):
				c.logger.Info().Err(err).Msg("connection closed by server, reconnecting")
			default:
				c.logger.Warn().Err(err).Msg("error while reading from connection")
			}
			continue
		}

		connected = true
		c.route(msg)
	}
}

// notifyDisconnected signals every subscriber. A signal that has not been
// consumed yet already covers this drop.
func (c *BinanceStreamClient) notifyDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for topic, entry := range c.subscriptions {
		c.logger.Debug().Str("topic", topic).Msg("notifying subscriber of disconnect")
		select {
		case entry.disconnected <- struct{}{}:
		default:
		}
	}
}

func (c *BinanceStreamClient) route(msg []byte) {
	var envelope struct {
		Message[json.RawMessage]
		WebSocketAckModel
		rawEventModel
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		c.logger.Warn().Err(err).Bytes("message", truncate(msg)).Msg("dropping undecodable message")
		return
	}

	switch {
	case envelope.ReqId != nil:
		if envelope.Error != nil {
			c.logger.Warn().Int("id", *envelope.ReqId).Int("code", envelope.Error.Code).Str("msg", envelope.Error.Msg).Msg("request rejected")
			return
		}
		c.logger.Debug().Int("id", *envelope.ReqId).RawJSON("result", nullIfEmpty(envelope.Result)).Msg("receive ack")

	case envelope.Stream != "":
		c.deliver(c.lookup(envelope.Stream), envelope.Stream, envelope.Data)

	case envelope.Event != "":
		topic, entry := c.lookupRaw(envelope.Symbol, envelope.Event)
		c.deliver(entry, topic, msg)

	default:
		c.logger.Debug().Bytes("message", truncate(msg)).Msg("ignoring unrecognized message")
	}
}

func (c *BinanceStreamClient) lookup(topic string) *subscriptionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.subscriptions[topic]
}

// lookupRaw maps a raw event to a subscribed topic: "depthUpdate" for
// BTCUSDT matches "btcusdt@depth" and "btcusdt@depth@100ms".
func (c *BinanceStreamClient) lookupRaw(symbol string, event string) (string, *subscriptionEntry) {
	stream := strings.TrimSuffix(event, "Update")
	prefix := strings.ToLower(symbol) + "@" + stream

	c.mu.Lock()
	defer c.mu.Unlock()

	for topic, entry := range c.subscriptions {
		if topic == prefix || strings.HasPrefix(topic, prefix+"@") {
			return topic, entry
		}
	}
	return prefix, nil
}

func (c *BinanceStreamClient) deliver(entry *subscriptionEntry, topic string, payload []byte) {
	if entry == nil {
		c.logger.Debug().Str("topic", topic).Msg("message for unknown topic")
		return
	}

	select {
	case entry.ch <- payload:
	case <-entry.stop:
	case <-c.done:
	}
}

func (c *BinanceStreamClient) closeSubscriptions() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for topic, entry := range c.subscriptions {
		close(entry.ch)
		delete(c.subscriptions, topic)
	}
}

func truncate(msg []byte) []byte {
	const max = 256
	if len(msg) > max {
		return msg[:max]
	}
	return msg
}

func nullIfEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}

func isCloseError(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
