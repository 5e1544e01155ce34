package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/odvcencio/tether/pkg/bridge"
	"github.com/odvcencio/tether/pkg/bus"
	"github.com/odvcencio/tether/pkg/protocol"
)

func TestAttach_CountsTraffic(t *testing.T) {
	b := bus.New()
	ids := Attach(b)
	defer func() {
		for _, id := range ids {
			b.Unsubscribe(id)
		}
	}()

	before := testutil.ToFloat64(metricFramesSent.WithLabelValues(protocol.TypeHello))
	b.PublishBridgeMessage(bridge.DirectionOutbound, protocol.Frame{Type: protocol.TypeHello})
	b.PublishBridgeMessage(bridge.DirectionInbound, protocol.Frame{Type: protocol.TypeLog})

	if got := testutil.ToFloat64(metricFramesSent.WithLabelValues(protocol.TypeHello)); got != before+1 {
		t.Errorf("Expected sent counter to increase by 1, got delta %v", got-before)
	}
	if got := testutil.ToFloat64(metricFramesReceived.WithLabelValues(protocol.TypeLog)); got < 1 {
		t.Errorf("Expected received counter >= 1, got %v", got)
	}
}

func TestAttach_TracksBridgeState(t *testing.T) {
	b := bus.New()
	ids := Attach(b)
	defer func() {
		for _, id := range ids {
			b.Unsubscribe(id)
		}
	}()

	b.PublishBridgeState(bridge.StateReady, "")

	if got := testutil.ToFloat64(metricBridgeState.WithLabelValues(string(bridge.StateReady))); got != 1 {
		t.Errorf("Expected ready gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(metricBridgeState.WithLabelValues(string(bridge.StateError))); got != 0 {
		t.Errorf("Expected error gauge 0, got %v", got)
	}
}

func TestObserveEditBatch(t *testing.T) {
	before := testutil.ToFloat64(metricEditBatches.WithLabelValues("error"))
	ObserveEditBatch(false)
	if got := testutil.ToFloat64(metricEditBatches.WithLabelValues("error")); got != before+1 {
		t.Errorf("Expected error outcome counted, delta %v", got-before)
	}
}
