package agent

import (
	"log/slog"
	"time"

	"github.com/aiswarm/orchestrator/driver"
	"github.com/aiswarm/orchestrator/events"
)

// supervise starts the status poll loop for drivers that report a status and
// installs the push hook for drivers that notify.
func (a *Agent) supervise(interval time.Duration) {
	if n, ok := a.driver.(driver.StatusNotifier); ok {
		a.cancelPush = n.OnStatus(a.observe)
	}
	r, ok := a.driver.(driver.StatusReporter)
	if !ok {
		return
	}
	a.stopPoll = make(chan struct{})
	a.pollDone = make(chan struct{})
	go a.poll(r, interval)
}

func (a *Agent) poll(r driver.StatusReporter, interval time.Duration) {
	defer close(a.pollDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopPoll:
			return
		case <-ticker.C:
			a.observe(r.Status())
		}
	}
}

// observe updates the cached status and notifies on change.
func (a *Agent) observe(status string) {
	a.mu.Lock()
	if a.removed || a.status == status {
		a.mu.Unlock()
		return
	}
	prev := a.status
	a.status = status
	a.mu.Unlock()

	a.logger.Debug("agent status changed", slog.String("from", prev), slog.String("to", status))
	a.notify.Emit(events.AgentUpdated, a)
}

func (a *Agent) stopSupervision() {
	if a.cancelPush != nil {
		a.cancelPush()
	}
	if a.stopPoll != nil {
		close(a.stopPoll)
		<-a.pollDone
	}
}
