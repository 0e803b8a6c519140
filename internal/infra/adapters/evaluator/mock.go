package evaluator

import (
	"context"
	"time"
)

// mock answers every prompt with a fixed acknowledgement after a short delay.
type mock struct {
	delay time.Duration
}

func newMock() *mock { return &mock{delay: 20 * time.Millisecond} }

func (*mock) Name() string { return "mock" }

func (m *mock) Complete(ctx context.Context, _ string) (string, error) {
	select {
	case <-time.After(m.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "✅ Received (mock).", nil
}
