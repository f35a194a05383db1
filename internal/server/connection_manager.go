package server

import (
	"sync"

	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
)

// ConnectionManager tracks live connections so shutdown can reach them.
type ConnectionManager struct {
	connections sync.Map
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{}
}

func (cm *ConnectionManager) AddConnection(conn *Connection) {
	cm.connections.Store(conn.Key(), conn)
	logger.InfoF("Client %s connected", conn.Key())
}

func (cm *ConnectionManager) RemoveConnection(key string) {
	cm.connections.Delete(key)
	logger.InfoF("Client %s disconnected", key)
}

func (cm *ConnectionManager) GetConnection(key string) (*Connection, bool) {
	if value, ok := cm.connections.Load(key); ok {
		return value.(*Connection), true
	}
	return nil, false
}

func (cm *ConnectionManager) Len() int {
	n := 0
	cm.connections.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CloseAll closes every tracked connection and returns how many it closed.
func (cm *ConnectionManager) CloseAll(code int, reason string) int {
	n := 0
	cm.connections.Range(func(_, value any) bool {
		conn := value.(*Connection)
		if err := conn.CloseWith(code, reason); err != nil {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", conn.Key(), err)
		}
		n++
		return true
	})
	return n
}
