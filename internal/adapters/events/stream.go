package events

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tasklist/pkg/domain"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Serve upgrades the request and streams ownerID's changes as JSON text
// frames until the client goes away. Inbound frames are discarded. Upgrades
// from an Origin that is neither same-host nor in allowedOrigins are refused
// with 403.
func Serve(w http.ResponseWriter, r *http.Request, broker Broker, ownerID string, logger Logger, allowedOrigins ...string) error {
	if logger == nil {
		logger = noopLogger{}
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return OriginAllowed(r, allowedOrigins) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	changes, stop, err := broker.Subscribe(ctx, ownerID)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeWait))
		return err
	}
	defer stop()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	logger.Debug("watcher connected", "owner", ownerID)
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("watcher disconnected", "owner", ownerID)
			return nil
		case change, ok := <-changes:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "broker closed"),
					time.Now().Add(writeWait))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(change); err != nil {
				return fmt.Errorf("write change: %w", err)
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// Watch dials a change stream at wsURL with token as a bearer credential and
// calls fn for every change. It returns nil when ctx ends or the server
// closes the stream normally.
func Watch(ctx context.Context, wsURL, token string, fn func(domain.Change)) error {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("watch: %w", domain.ErrUnauthorized)
		}
		return domain.Unavailable("watch", err)
	}
	defer func() { _ = conn.Close() }()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var change domain.Change
		if err := conn.ReadJSON(&change); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
				return nil
			}
			return domain.Unavailable("watch", err)
		}
		fn(change)
	}
}
