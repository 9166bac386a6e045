package websocket

import (
	"sync"

	"auction-core/internal/domain"
	"auction-core/pkg/logger"
)

type ConnectionManager struct {
	connections map[string]map[string]domain.WebSocketConnection // auctionID -> userID -> connection
	userConns   map[string][]domain.WebSocketConnection          // userID -> connections
	mutex       sync.RWMutex
	log         logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]map[string]domain.WebSocketConnection),
		userConns:   make(map[string][]domain.WebSocketConnection),
		log:         log,
	}
}

func (cm *ConnectionManager) RegisterConnection(userID, auctionID string, conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.connections[auctionID] == nil {
		cm.connections[auctionID] = make(map[string]domain.WebSocketConnection)
	}
	cm.connections[auctionID][userID] = conn
	cm.userConns[userID] = append(cm.userConns[userID], conn)

	cm.log.Info("Connection registered", "user_id", userID, "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) UnregisterConnection(userID, auctionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if auctionConns, exists := cm.connections[auctionID]; exists {
		delete(auctionConns, userID)
		if len(auctionConns) == 0 {
			delete(cm.connections, auctionID)
		}
	}
	cm.dropUserConn(userID, auctionID)

	cm.log.Info("Connection unregistered", "user_id", userID, "auction_id", auctionID)
	return nil
}

// CloseAndUnregisterConnections tears down every watcher of an auction.
// Called when the auction reaches a terminal status.
func (cm *ConnectionManager) CloseAndUnregisterConnections(auctionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	auctionConns, exists := cm.connections[auctionID]
	if !exists {
		return nil
	}

	for userID, conn := range auctionConns {
		if err := conn.Close(); err != nil {
			cm.log.Error("Failed to close connection", "user_id", userID,
				"auction_id", auctionID, "error", err)
		}
		cm.dropUserConn(userID, auctionID)
	}
	delete(cm.connections, auctionID)

	cm.log.Info("Connections closed for auction", "auction_id", auctionID)
	return nil
}

// dropUserConn removes the user's connections bound to auctionID.
// Caller holds the write lock.
func (cm *ConnectionManager) dropUserConn(userID, auctionID string) {
	userConnections, exists := cm.userConns[userID]
	if !exists {
		return
	}

	var remaining []domain.WebSocketConnection
	for _, existing := range userConnections {
		if existing.AuctionID() != auctionID {
			remaining = append(remaining, existing)
		}
	}

	if len(remaining) == 0 {
		delete(cm.userConns, userID)
	} else {
		cm.userConns[userID] = remaining
	}
}

func (cm *ConnectionManager) connectionsForAuction(auctionID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var connections []domain.WebSocketConnection
	for _, conn := range cm.connections[auctionID] {
		connections = append(connections, conn)
	}
	return connections
}

func (cm *ConnectionManager) connectionsForUser(userID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	return cm.userConns[userID]
}

func (cm *ConnectionManager) BroadcastToAuction(auctionID string, message interface{}) error {
	connections := cm.connectionsForAuction(auctionID)

	for _, conn := range connections {
		if err := conn.Send(message); err != nil {
			cm.log.Error("Failed to send message", "user_id", conn.UserID(),
				"auction_id", auctionID, "error", err)
			// Continue to other connections
		}
	}

	return nil
}

func (cm *ConnectionManager) NotifyUser(userID string, message interface{}) error {
	connections := cm.connectionsForUser(userID)

	for _, conn := range connections {
		if err := conn.Send(message); err != nil {
			cm.log.Error("Failed to send message", "user_id", userID, "error", err)
		}
	}

	return nil
}
