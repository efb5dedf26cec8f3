package power

import (
	"context"
	"log"
	"time"
)

const DefaultHealthInterval = 30 * time.Second

// HealthCheck periodically verifies connectivity while the process is idle
// and kicks the shared reconnect loop when the connection is down. Triggers
// are idempotent: a loop already in progress is left to run.
type HealthCheck struct {
	interval time.Duration
	agent    *Agent
}

func NewHealthCheck(agent *Agent, interval time.Duration) *HealthCheck {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &HealthCheck{interval: interval, agent: agent}
}

func (h *HealthCheck) Start(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log.Printf("[health] Check started (interval: %v)", h.interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("[health] Check stopped")
			return
		case <-h.agent.st.Done():
			return
		case <-ticker.C:
			if h.agent.st.ShuttingDown() {
				return
			}
			if h.agent.Status() != StatusConnected {
				log.Printf("[health] Connection is %v, triggering reconnect", h.agent.Status())
				h.agent.EnsureConnected()
			}
		}
	}
}
