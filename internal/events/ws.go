package events

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// the UI runs on the same machine; no cross-origin concerns
		return true
	},
}

// WSHandler upgrades the connection and keeps it attached to the hub
// until the client goes away. Incoming messages are ignored.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		hub.AttachWS(ws)
		_ = ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"welcome","transport":"websocket"}`+"\n"))

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.DetachWS(ws)
	}
}
