package web

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/salonkit/workflowd/pkg/notify"
)

// DefaultKeepAlive is how often an idle stream writes a comment. A failed write is how a
// disconnected client is noticed.
const DefaultKeepAlive = 15 * time.Second

// StreamNotifications streams the shop's execution notifications as server-sent events.
func (h *APIHandlers) StreamNotifications(c fiber.Ctx) error {
	shopID := c.Params("shopId")
	if c.Get(HeaderShopID) != shopID {
		return forbidden(c, "shop does not match caller")
	}

	notifications, cancel := h.hub.Subscribe(shopID)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	keepAlive := h.keepAlive
	logger := h.logger.With("shop_id", shopID)

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		err := pump(w, notifications, ticker.C)
		if err != nil {
			logger.Debug("Notification stream closed", "error", err)
		}
	})
}

// pump writes notifications until the channel closes or a write fails.
func pump(w *bufio.Writer, notifications <-chan notify.Notification, keepAlive <-chan time.Time) error {
	_, err := w.WriteString(": connected\n\n")
	if err != nil {
		return err
	}

	if err := w.Flush(); err != nil {
		return err
	}

	for {
		select {
		case n, ok := <-notifications:
			if !ok {
				return nil
			}

			payload, err := json.Marshal(n)
			if err != nil {
				return fmt.Errorf("failed to encode notification: %w", err)
			}

			_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", n.ExecutionID, n.Type, payload)
			if err != nil {
				return err
			}
		case <-keepAlive:
			_, err := w.WriteString(": keep-alive\n\n")
			if err != nil {
				return err
			}
		}

		if err := w.Flush(); err != nil {
			return err
		}
	}
}
