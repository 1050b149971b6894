package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/netra-systems/zen-sub295/internal/events"
)

// WebSocket connects to url and decodes each text frame as one record.
// It returns nil when the server closes the connection normally or ctx is
// cancelled.
func WebSocket(ctx context.Context, url string, header http.Header, h Handler, opts ...Option) error {
	o := buildOptions(opts)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to %s (status %d): %w", url, resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer conn.Close()

	o.Logger.Info("websocket connected", "url", url)

	// Unblock ReadMessage on cancellation
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
		}
	}()

	frame := 0
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				o.Logger.Info("websocket closed by server", "url", url, "frames", frame)
				return nil
			}
			return fmt.Errorf("websocket read failed after %d frames: %w", frame, err)
		}
		frame++

		if msgType != websocket.TextMessage {
			o.Logger.Debug("skipping non-text frame", "frame", frame, "type", msgType)
			continue
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}

		event, err := events.ParseRecord(data)
		if err != nil {
			if err := o.handleParseError(&events.ParseError{Line: frame, Err: err}); err != nil {
				return err
			}
			continue
		}
		event.SourceLine = frame
		if event.RunID == "" {
			event.RunID = o.DefaultRunID
		}

		if err := h(ctx, event); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("frame %d: %w", frame, err)
		}
	}
}
