package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the multiplayer server.
//
// Naming convention: namespace_subsystem_name
// - namespace: phira_mp (application-level grouping)
// - subsystem: tcp, room, auth (feature-level grouping)
// - name: specific metric (connections_active, packets_total, etc.)

var (
	// ActiveConnections tracks the current number of open TCP connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "phira_mp",
		Subsystem: "tcp",
		Name:      "connections_active",
		Help:      "Current number of open TCP connections",
	})

	// ActiveRooms tracks the current number of live rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "phira_mp",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks the participant count per room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "phira_mp",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_id"})

	// PacketsReceived counts serverbound packets by id.
	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phira_mp",
		Subsystem: "tcp",
		Name:      "packets_received_total",
		Help:      "Total serverbound packets processed",
	}, []string{"packet_id"})

	// PacketsDropped counts clientbound packets dropped because the peer's
	// send queue overflowed.
	PacketsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "phira_mp",
		Subsystem: "tcp",
		Name:      "packets_dropped_total",
		Help:      "Total clientbound packets dropped due to backpressure",
	})

	// AuthAttempts counts authentication outcomes.
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phira_mp",
		Subsystem: "auth",
		Name:      "attempts_total",
		Help:      "Total authentication attempts",
	}, []string{"status"})

	// ConnectionsRejected counts connections refused before the handshake.
	ConnectionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phira_mp",
		Subsystem: "tcp",
		Name:      "connections_rejected_total",
		Help:      "Total connections refused at accept time",
	}, []string{"reason"})

	// RateLimitExceeded counts requests refused by a rate limiter.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phira_mp",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Total requests rejected by rate limiting",
	}, []string{"scope"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
