package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades connections and runs them as Hub clients.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			// The UI may be served from a dev server on another port.
			InsecureSkipVerify: true,
		})
		if err != nil {
			hub.logger.Warn("accept websocket", "error", err)
			return
		}
		defer conn.CloseNow()

		hub.logger.Debug("ui connected", "remote", r.RemoteAddr)
		NewClient(hub, conn).Run(r.Context())
	}
}
