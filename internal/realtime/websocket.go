// internal/realtime/websocket.go
package realtime

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/auth"
)

// LocalsCaller is the fiber local holding the authenticated auth.Caller.
const LocalsCaller = "caller"

// Handler streams wallet events to an authenticated user. The upgrade route
// must run the session middleware first.
func (h *Hub) Handler(c *websocket.Conn) {
	caller, ok := c.Locals(LocalsCaller).(auth.Caller)
	if !ok || caller.RequireUser() != nil {
		_ = c.Close()
		return
	}

	client := &Client{
		ID:     uuid.New().String(),
		UserID: caller.UserID,
		Send:   make(chan []byte, 256),
	}

	if !h.RegisterClient(client) {
		_ = c.Close()
		return
	}
	defer h.UnregisterClient(client)

	go func() {
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("websocket write error", zap.Error(err))
				return
			}
		}
	}()

	// reads only keep the connection alive
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			h.log.Debug("websocket closed", zap.Stringer("user_id", caller.UserID), zap.Error(err))
			return
		}
	}
}
