package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// BrokerStatus reports whether the event broker connection is up.
type BrokerStatus interface {
	IsConnected() bool
}

type HealthStatus struct {
	Healthy           bool     `json:"healthy"`
	DatabaseConnected bool     `json:"database_connected"`
	NATSConnected     *bool    `json:"nats_connected,omitempty"`
	ActiveRooms       int      `json:"active_rooms"`
	Connections       int      `json:"connections"`
	Errors            []string `json:"errors"`
}

// HealthChecker backs the readiness endpoint. A nil broker is skipped.
type HealthChecker struct {
	db          Pinger
	broker      BrokerStatus
	rooms       RoomReader
	connections *ConnectionManager
	timeout     time.Duration
}

func NewHealthChecker(db Pinger, broker BrokerStatus, rooms RoomReader, connections *ConnectionManager) *HealthChecker {
	return &HealthChecker{
		db:          db,
		broker:      broker,
		rooms:       rooms,
		connections: connections,
		timeout:     2 * time.Second,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.db.Ping(pingCtx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.broker != nil {
		connected := h.broker.IsConnected()
		status.NATSConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if h.rooms != nil {
		status.ActiveRooms = len(h.rooms.LiveRooms())
	}
	if h.connections != nil {
		status.Connections = h.connections.Stats().TotalConnections
	}
	return status
}

// ServeHTTP answers 200 when healthy and 503 otherwise.
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
