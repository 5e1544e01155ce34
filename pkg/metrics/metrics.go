// Package metrics exposes Prometheus instrumentation for the bridge and
// coordinator. Traffic and state metrics are fed from the event bus so the
// instrumented packages stay unaware of Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/tether/pkg/bridge"
	"github.com/odvcencio/tether/pkg/bus"
)

var (
	metricFramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tether",
		Name:      "frames_sent_total",
		Help:      "Frames transmitted to the agent, by frame type.",
	}, []string{"type"})
	metricFramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tether",
		Name:      "frames_received_total",
		Help:      "Frames received from the agent, by frame type.",
	}, []string{"type"})
	metricBridgeState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tether",
		Name:      "bridge_state",
		Help:      "Current bridge connection state (1 for the active state).",
	}, []string{"state"})
	metricLogEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tether",
		Name:      "log_entries_total",
		Help:      "Log entries published on the bus, by level.",
	}, []string{"level"})
	metricActionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tether",
		Name:      "actions_in_flight",
		Help:      "Remote actions invoked and awaiting completion.",
	})
	metricEditBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tether",
		Name:      "edit_batches_total",
		Help:      "Edit batches applied, by outcome.",
	}, []string{"outcome"})
	metricTaskSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tether",
		Name:      "task_steps_total",
		Help:      "Task steps executed, by mode.",
	}, []string{"mode"})
)

var bridgeStates = []bridge.State{
	bridge.StateDisconnected,
	bridge.StateConnecting,
	bridge.StateReady,
	bridge.StateError,
}

// Attach subscribes the collectors to the bus and returns the subscription
// ids so the caller can detach them.
func Attach(b *bus.Bus) []string {
	msgID := b.SubscribeBridgeMessage(func(ev bus.BridgeMessageEvent) {
		switch ev.Direction {
		case bridge.DirectionOutbound:
			metricFramesSent.WithLabelValues(ev.Frame.Type).Inc()
		case bridge.DirectionInbound:
			metricFramesReceived.WithLabelValues(ev.Frame.Type).Inc()
		}
	})
	stateID := b.SubscribeBridgeState(func(ev bus.BridgeStateEvent) {
		for _, s := range bridgeStates {
			v := 0.0
			if s == ev.State {
				v = 1.0
			}
			metricBridgeState.WithLabelValues(string(s)).Set(v)
		}
	})
	logID := b.SubscribeLog(func(ev bus.LogEvent) {
		metricLogEntries.WithLabelValues(ev.Level).Inc()
	})
	return []string{msgID, stateID, logID}
}

// SetActionsInFlight records the current in-flight remote action count.
func SetActionsInFlight(n int) {
	metricActionsInFlight.Set(float64(n))
}

// ObserveEditBatch records the outcome of one edit batch.
func ObserveEditBatch(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	metricEditBatches.WithLabelValues(outcome).Inc()
}

// ObserveTaskStep records one executed task step.
func ObserveTaskStep(mode string) {
	metricTaskSteps.WithLabelValues(mode).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
