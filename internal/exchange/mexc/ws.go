package mexc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readWait is the time allowed between server messages before the
	// connection is considered dead. Depth pushes arrive far more often.
	readWait = 60 * time.Second

	// defaultPingInterval is the manual PING cadence; the venue drops
	// connections that stay silent for ~60s.
	defaultPingInterval = 20 * time.Second
)

var defaultWSEndpoints = []string{
	"wss://wbs-api.mexc.com/ws",
	"wss://wbs.mexc.com/ws",
}

// wsSession is one live streaming connection. Sessions are single-use: the
// caller reconnects by opening a new session, and nextEndpoint rotates the
// endpoint list round-robin so repeated failures migrate to alternates.
type wsSession struct {
	conn   *websocket.Conn
	logger *slog.Logger
}

// nextEndpoint picks the next endpoint in rotation.
func nextEndpoint(endpoints []string, counter *atomic.Uint64) string {
	n := counter.Add(1) - 1
	return endpoints[n%uint64(len(endpoints))]
}

// dialWS opens a connection and issues the subscription for the given
// channels.
func dialWS(ctx context.Context, endpoint string, channels []string, logger *slog.Logger) (*wsSession, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, &domain.TransportError{Venue: domain.VenueMEXC, Op: "dial " + endpoint, Err: err}
	}

	sub := struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{Method: "SUBSCRIPTION", Params: channels}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, &domain.TransportError{Venue: domain.VenueMEXC, Op: "subscribe", Err: err}
	}

	logger.Debug("mexc ws connected", slog.String("endpoint", endpoint), slog.Any("channels", channels))
	return &wsSession{conn: conn, logger: logger}, nil
}

// run reads frames until the context is cancelled or the transport fails,
// passing every frame to handle. A manual JSON PING is sent at pingInterval;
// the venue answers with a PONG control message.
func (s *wsSession) run(ctx context.Context, pingInterval time.Duration, handle func(messageType int, data []byte)) error {
	defer s.conn.Close()

	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}

	pingDone := make(chan struct{})
	defer close(pingDone)
	go s.pingLoop(pingInterval, pingDone)

	// Unblock the read loop when the context ends.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		s.conn.Close()
	})
	defer stop()

	for {
		s.conn.SetReadDeadline(time.Now().Add(readWait))
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &domain.TransportError{Venue: domain.VenueMEXC, Op: "read", Err: err}
		}
		handle(msgType, data)
	}
}

// pingLoop sends the manual JSON heartbeat the venue requires.
func (s *wsSession) pingLoop(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ping := []byte(`{"method":"PING"}`)
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
		}
	}
}

// depthChannel builds the limit-depth subscription topic.
func depthChannel(symbol string, depth int) string {
	return fmt.Sprintf("spot@public.limit.depth.v3.api@%s@%d", symbol, depth)
}

// aggreDealsChannel builds the protobuf aggregate-deals subscription topic.
func aggreDealsChannel(symbol string) string {
	return fmt.Sprintf("spot@public.aggre.deals.v3.api.pb@100ms@%s", symbol)
}

// isControlMessage reports whether a text frame is a PONG or subscription
// ack rather than a data push.
func isControlMessage(data []byte) bool {
	var ctrl wsControlMessage
	if err := json.Unmarshal(data, &ctrl); err != nil {
		return false
	}
	return ctrl.Msg == "PONG" || strings.HasPrefix(ctrl.Msg, "spot@")
}
