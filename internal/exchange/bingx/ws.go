package bingx

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const (
	defaultWSEndpoint = "wss://open-api-ws.bingx.com/market"

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readWait is the time allowed between server messages. The transport's
	// native ping keeps healthy connections well under this.
	readWait = 60 * time.Second
)

// runDepthStream runs one depth streaming session: dial, subscribe, then
// decode gzip JSON frames until the context ends or the transport fails.
// The server sends "Ping" text frames that must be answered with "Pong".
func runDepthStream(ctx context.Context, endpoint, dataType string, logger *slog.Logger, handle func(*wsDepthMessage)) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return &domain.TransportError{Venue: domain.VenueBingX, Op: "dial " + endpoint, Err: err}
	}
	defer conn.Close()

	sub := wsSubscribe{
		ID:       uuid.NewString(),
		ReqType:  "sub",
		DataType: dataType,
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return &domain.TransportError{Venue: domain.VenueBingX, Op: "subscribe", Err: err}
	}
	logger.Debug("bingx ws connected", slog.String("endpoint", endpoint), slog.String("dataType", dataType))

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		conn.Close()
	})
	defer stop()

	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &domain.TransportError{Venue: domain.VenueBingX, Op: "read", Err: err}
		}

		payload, err := maybeGunzip(data)
		if err != nil {
			logger.Warn("frame decompress failed", slog.String("error", err.Error()))
			continue
		}

		if bytes.Equal(payload, []byte("Ping")) {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("Pong")); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return &domain.TransportError{Venue: domain.VenueBingX, Op: "pong", Err: err}
			}
			continue
		}

		var msg wsDepthMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Warn("frame decode failed", slog.String("error", err.Error()))
			continue
		}
		if msg.Code != 0 {
			logger.Warn("stream error frame", slog.Int("code", msg.Code))
			continue
		}
		if msg.Data.Bids == nil && msg.Data.Asks == nil {
			continue // subscription ack
		}
		handle(&msg)
	}
}

// maybeGunzip decompresses a gzip frame, passing plain frames through.
func maybeGunzip(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	return out, nil
}
