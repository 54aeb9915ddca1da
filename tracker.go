package work

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	activeDifficultyTopic = "active_difficulty"
	maxWsMessageSize      = 1 << 16
)

// WsConn is the websocket connection interface used by DifficultyTracker.
type WsConn interface {
	SetReadLimit(int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) (err error)
	WriteJSON(v interface{}) error
	ReadMessage() (messageType int, data []byte, err error)
	SetPongHandler(func(string) error)
	Close() error
}

var _ WsConn = (*websocket.Conn)(nil)

// DifficultyTracker is a DifficultyPolicy that follows the active_difficulty
// topic of a node websocket. Until the first update arrives it answers from
// the fallback policy. The connection is re-established with exponential
// backoff whenever it drops.
type DifficultyTracker struct {
	OnError      *OnError
	OnDifficulty *OnDifficulty

	config    *TrackerConfig
	log       *zap.Logger
	ready     chan struct{}
	readyOnce sync.Once
	closeChan chan struct{}
	done      chan struct{}

	lock    sync.RWMutex
	current *ActiveDifficulty
	conn    WsConn
	closed  bool
}

// NewDifficultyTracker creates a tracker and starts connecting in the
// background. A nil config uses the default config.
func NewDifficultyTracker(conf *TrackerConfig) (*DifficultyTracker, error) {
	config, err := MergeTrackerConfig(conf)
	if err != nil {
		return nil, err
	}
	t := &DifficultyTracker{
		OnError:      NewOnError(1, nil),
		OnDifficulty: NewOnDifficulty(1, nil),
		config:       config,
		log:          config.Logger.With(zap.String("websocket", config.WebsocketAddr)),
		ready:        make(chan struct{}),
		closeChan:    make(chan struct{}),
		done:         make(chan struct{}),
	}
	go t.run()
	return t, nil
}

// Ready returns a channel that is closed when the first difficulty update has
// been received.
func (t *DifficultyTracker) Ready() <-chan struct{} {
	return t.ready
}

// Current returns the latest update, or nil if none has arrived yet.
func (t *DifficultyTracker) Current() *ActiveDifficulty {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.current
}

func (t *DifficultyTracker) policy() DifficultyPolicy {
	if d := t.Current(); d != nil {
		return d
	}
	return t.config.Fallback
}

// DifficultyFor returns the latest network minimum for the block subtype.
func (t *DifficultyTracker) DifficultyFor(block Block) (Difficulty, error) {
	return t.policy().DifficultyFor(block)
}

// DifficultyForAny returns the latest highest network minimum.
func (t *DifficultyTracker) DifficultyForAny() (Difficulty, error) {
	return t.policy().DifficultyForAny()
}

// RecommendedMultiplier returns the latest network multiplier.
func (t *DifficultyTracker) RecommendedMultiplier() (float64, error) {
	return t.policy().RecommendedMultiplier()
}

// IsClosed returns whether the tracker is closed.
func (t *DifficultyTracker) IsClosed() bool {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.closed
}

// Close stops the tracker and closes its websocket connection. The last
// received difficulty stays available.
func (t *DifficultyTracker) Close() error {
	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		return nil
	}
	t.closed = true
	close(t.closeChan)
	conn := t.conn
	t.lock.Unlock()

	if conn != nil {
		conn.Close()
	}
	<-t.done

	t.OnError.close()
	t.OnDifficulty.close()
	return nil
}

func (t *DifficultyTracker) run() {
	defer close(t.done)

	minInterval := time.Duration(t.config.MinReconnectInterval) * time.Millisecond
	maxInterval := time.Duration(t.config.MaxReconnectInterval) * time.Millisecond
	interval := minInterval
	for {
		connected, err := t.connectAndRead()
		if t.IsClosed() {
			return
		}
		if err != nil {
			t.log.Warn("Websocket error", zap.Error(err))
			t.OnError.receive(err, t.log)
		}
		if connected {
			interval = minInterval
		}

		t.log.Debug("Reconnecting", zap.Duration("after", interval))
		select {
		case <-t.closeChan:
			return
		case <-time.After(interval):
		}

		interval *= 2
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}

// connectAndRead dials the node, subscribes and reads until the connection
// drops. The returned bool reports whether the dial succeeded.
func (t *DifficultyTracker) connectAndRead() (bool, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: time.Duration(t.config.WsHandshakeTimeout) * time.Millisecond,
	}
	conn, _, err := dialer.Dial(t.config.WebsocketAddr, nil)
	if err != nil {
		return false, err
	}

	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		conn.Close()
		return true, nil
	}
	t.conn = conn
	t.lock.Unlock()

	defer func() {
		t.lock.Lock()
		t.conn = nil
		t.lock.Unlock()
		conn.Close()
	}()

	return true, t.read(conn)
}

func (t *DifficultyTracker) read(conn WsConn) error {
	conn.SetReadLimit(maxWsMessageSize)

	req := map[string]interface{}{
		"action": "subscribe",
		"topic":  activeDifficultyTopic,
		"ack":    true,
	}
	if err := conn.WriteJSON(req); err != nil {
		return err
	}
	t.log.Debug("Subscribed", zap.String("topic", activeDifficultyTopic))

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if t.IsClosed() {
				return nil
			}
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := t.handleMessage(data); err != nil {
			t.log.Warn("Handle websocket message error", zap.Error(err))
			t.OnError.receive(err, t.log)
		}
	}
}

func (t *DifficultyTracker) handleMessage(data []byte) error {
	msg := make(map[string]*json.RawMessage)
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	if msg["ack"] != nil || msg["topic"] == nil || msg["message"] == nil {
		return nil
	}

	var topic string
	if err := json.Unmarshal(*msg["topic"], &topic); err != nil {
		return err
	}
	if topic != activeDifficultyTopic {
		return nil
	}

	resp := &activeDifficultyResponse{}
	if err := json.Unmarshal(*msg["message"], resp); err != nil {
		return err
	}
	d, err := resp.parse()
	if err != nil {
		return err
	}

	t.lock.Lock()
	t.current = d
	t.lock.Unlock()
	t.readyOnce.Do(func() {
		close(t.ready)
	})

	t.log.Debug("Active difficulty updated",
		zap.Stringer("send", d.NetworkMinimum),
		zap.Stringer("receive", d.NetworkReceiveMinimum),
		zap.Float64("multiplier", d.Multiplier))
	t.OnDifficulty.receive(d)
	return nil
}
