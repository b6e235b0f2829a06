package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// NewUpgrader accepts browser connections from the listed origins. An empty
// list keeps gorilla's same-origin check; "*" accepts any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	u := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) == 0 {
		return u
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	u.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
	return u
}
