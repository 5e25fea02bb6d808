package exchange

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	subscribeBatchSize = 100
	pingInterval       = 20 * time.Second
	writeTimeout       = 10 * time.Second
	readTimeout        = 40 * time.Second
	eventBufferSize    = 4096
)

type StreamConfig struct {
	URL         string
	Channel     string // "tickers" or "candle1H"
	Instruments []string
	// OnReconnect is invoked after every successful (re)connection.
	OnReconnect func()
}

// Stream maintains one websocket subscription channel. On disconnect it
// reconnects with exponential backoff and re-issues all subscriptions; missed
// events are not replayed.
type Stream struct {
	cfg StreamConfig
	out chan Event

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewStream(cfg StreamConfig) *Stream {
	return &Stream{
		cfg: cfg,
		out: make(chan Event, eventBufferSize),
	}
}

// Events is the channel the engine's event loop consumes.
func (s *Stream) Events() <-chan Event {
	return s.out
}

// Run blocks until ctx is done, reconnecting forever.
func (s *Stream) Run(ctx context.Context) {
	boff := backoff.NewExponentialBackOff()
	boff.MaxElapsedTime = 0 // reconnect forever

	for ctx.Err() == nil {
		err := backoff.Retry(func() error {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return s.connect(ctx)
		}, backoff.WithContext(boff, ctx))
		if err != nil {
			return
		}
		boff.Reset()

		err = s.readLoop(ctx)
		s.closeConn()
		if ctx.Err() != nil {
			return
		}
		zap.S().Warnw("stream disconnected", "channel", s.cfg.Channel, "err", err)
		s.emit(ctx, Disconnected{Channel: s.cfg.Channel, Err: err})
	}
}

func (s *Stream) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		zap.S().Warnw("stream dial failed", "channel", s.cfg.Channel, "err", err)
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := s.subscribeAll(); err != nil {
		s.closeConn()
		return err
	}
	zap.S().Infow("stream connected",
		"channel", s.cfg.Channel, "instruments", len(s.cfg.Instruments))
	if s.cfg.OnReconnect != nil {
		s.cfg.OnReconnect()
	}
	return nil
}

func (s *Stream) subscribeAll() error {
	insts := s.cfg.Instruments
	for i := 0; i < len(insts); i += subscribeBatchSize {
		end := i + subscribeBatchSize
		if end > len(insts) {
			end = len(insts)
		}
		args := make([]wsChannel, 0, end-i)
		for _, inst := range insts[i:end] {
			args = append(args, wsChannel{Channel: s.cfg.Channel, InstID: inst})
		}
		if err := s.writeJSON(wsRequest{Op: "subscribe", Args: args}); err != nil {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

func (s *Stream) readLoop(ctx context.Context) error {
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go s.pingLoop(pingCtx)

	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return nil
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if string(raw) == "pong" {
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			zap.S().Debugw("stream message not json", "channel", s.cfg.Channel, "raw", string(raw))
			continue
		}

		switch {
		case msg.Event == "error":
			zap.S().Errorw("stream error message", "channel", s.cfg.Channel, "msg", msg.Msg)
		case msg.Event == "subscribe" || msg.Event == "unsubscribe":
			zap.S().Debugw("stream ack", "channel", s.cfg.Channel, "event", msg.Event, "inst_id", msg.Arg.InstID)
		case len(msg.Data) > 0:
			for _, ev := range s.decode(&msg) {
				s.emit(ctx, ev)
			}
		}
	}
}

func (s *Stream) decode(msg *wsMessage) []Event {
	switch s.cfg.Channel {
	case "tickers":
		return parseTickerEvents(msg)
	default:
		return parseCandleEvents(msg)
	}
}

// pingLoop keeps the connection alive with the exchange's text ping protocol.
func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeText("ping"); err != nil {
				return
			}
		}
	}
}

func (s *Stream) emit(ctx context.Context, ev Event) {
	select {
	case s.out <- ev:
	case <-ctx.Done():
	}
}

func (s *Stream) writeJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, raw)
}

func (s *Stream) writeText(msg string) error {
	return s.write(websocket.TextMessage, []byte(msg))
}

func (s *Stream) write(msgType int, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return websocket.ErrCloseSent
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(msgType, payload)
}

func (s *Stream) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
