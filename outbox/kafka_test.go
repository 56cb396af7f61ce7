package outbox

import "testing"

func TestNewKafkaNotifier_RequiresBrokers(t *testing.T) {
	if _, err := NewKafkaNotifier(nil); err == nil {
		t.Fatalf("expected an error without brokers")
	}
	n, err := NewKafkaNotifier([]string{"localhost:9092"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestNewRelay_Defaults(t *testing.T) {
	r := NewRelay(nil, nil, 0, 0, 0)
	if r.batchSize != 100 {
		t.Errorf("expected default batch size 100, got %d", r.batchSize)
	}
	if r.workers != 1 {
		t.Errorf("expected default worker count 1, got %d", r.workers)
	}
}
