package websocket

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Connection wraps one gorilla connection. Writes are serialized with a
// mutex because both the broadcast fan-out and the per-user notifier may
// target the same connection concurrently.
type Connection struct {
	conn      *websocket.Conn
	userID    string
	auctionID string
	writeMu   sync.Mutex
}

func NewConnection(conn *websocket.Conn, userID, auctionID string) *Connection {
	return &Connection{
		conn:      conn,
		userID:    userID,
		auctionID: auctionID,
	}
}

func (c *Connection) Send(message interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(message)
}

func (c *Connection) Close() error {
	return c.conn.Close()
}

func (c *Connection) UserID() string {
	return c.userID
}

func (c *Connection) AuctionID() string {
	return c.auctionID
}
