package websocket

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"auction-core/internal/domain"
	"auction-core/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// Handler upgrades watch requests and keeps the connection registered
// until the peer goes away or the auction closes.
type Handler struct {
	connManager domain.ConnectionManager
	log         logger.Logger
}

func NewHandler(connManager domain.ConnectionManager, log logger.Logger) *Handler {
	return &Handler{
		connManager: connManager,
		log:         log,
	}
}

func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	auctionID := vars["auctionID"]

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := NewConnection(conn, userID, auctionID)

	if err := h.connManager.RegisterConnection(userID, auctionID, wsConn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		conn.Close()
		return
	}

	go h.readLoop(wsConn, conn, userID, auctionID)
}

// readLoop drains client frames. Watchers only send pings; everything else
// is ignored. Exiting the loop unregisters the connection.
func (h *Handler) readLoop(wsConn *Connection, conn *websocket.Conn, userID, auctionID string) {
	defer func() {
		h.connManager.UnregisterConnection(userID, auctionID)
		wsConn.Close()
	}()

	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		msgType, ok := msg["type"].(string)
		if !ok {
			continue
		}

		if msgType == "ping" {
			wsConn.Send(map[string]string{"type": "pong"})
		}
	}
}
