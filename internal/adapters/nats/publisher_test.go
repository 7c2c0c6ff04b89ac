package natsadapter_test

import (
	"testing"

	natsadapter "github.com/samirrijal/shoptrip/internal/adapters/nats"
)

func TestTripSubject(t *testing.T) {
	got := natsadapter.TripSubject("3f2b")
	if got != "trip.events.3f2b" {
		t.Fatalf("expected trip.events.3f2b, got %s", got)
	}
}
