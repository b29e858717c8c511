package reorg

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/metrics"
)

// Handler forwards suspect windows to the repair queue, dropping a window
// already covered by the previous one.
type Handler struct {
	queue Queue

	mu   sync.Mutex
	last *domain.SuspectRange
}

// Handle queues s unless the last queued window covers it.
func (h *Handler) Handle(ctx context.Context, s domain.SuspectRange) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.last != nil && covers(*h.last, s) {
		return nil
	}
	if err := h.queue.Push(ctx, s); err != nil {
		return fmt.Errorf("failed to queue suspect window %d/%d: %w", s.Start, s.Remains, err)
	}
	metrics.ReorgsDetected.Inc()
	slog.Warn("reorg suspected", "component", "reorg", "start", s.Start, "remains", s.Remains)
	h.last = &s
	return nil
}

func covers(a, b domain.SuspectRange) bool {
	return a.Start >= b.Start && a.Start+1-a.Remains <= b.Start+1-b.Remains
}
