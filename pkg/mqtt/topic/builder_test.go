package topic

import "testing"

func TestBuilder(t *testing.T) {
	b := NewBuilder("gcs/v1")

	if got := b.Telemetry("scout-1"); got != "gcs/v1/telemetry/scout-1" {
		t.Errorf("Telemetry = %q", got)
	}
	if got := b.TelemetryWildcard(); got != "gcs/v1/telemetry/+" {
		t.Errorf("TelemetryWildcard = %q", got)
	}
	if got := b.Event("alert", "delivery-2"); got != "gcs/v1/events/alert/delivery-2" {
		t.Errorf("Event = %q", got)
	}
}
