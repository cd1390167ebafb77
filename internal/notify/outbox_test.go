package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flexa/stylebot/internal/models"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Send(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOutbox_DeliversEvents(t *testing.T) {
	sink := &recordingSink{}
	outbox := NewOutbox(sink, 8, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go outbox.Run(ctx)

	outbox.Emit(UserJoined{User: models.User{ID: 7}})
	outbox.Emit(GenerationCompleted{UserID: 7, ResultURL: "https://cdn.example/out.png"})

	assert.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestOutbox_EmitNeverBlocks(t *testing.T) {
	// No consumer running: the buffer fills up and further emits are dropped.
	outbox := NewOutbox(&recordingSink{}, 2, discardLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			outbox.Emit(UserJoined{User: models.User{ID: int64(i)}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full outbox")
	}
}

func TestOutbox_SendFailuresAreSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("telegram down")}
	outbox := NewOutbox(sink, 8, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go outbox.Run(ctx)

	outbox.Emit(PaymentRejected{UserID: 7, Reason: "no"})
	outbox.Emit(PaymentRejected{UserID: 7, Reason: "still no"})

	assert.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
}
