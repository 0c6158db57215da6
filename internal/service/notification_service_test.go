package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorhive/matching-api/internal/models"
	"github.com/tutorhive/matching-api/pkg/jobs"
)

type notificationWriterMock struct {
	mu      sync.Mutex
	created []models.Notification
	done    chan struct{}
}

func (m *notificationWriterMock) Create(ctx context.Context, notification *models.Notification) error {
	m.mu.Lock()
	m.created = append(m.created, *notification)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

type publisherStub struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
}

func (p *publisherStub) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	if raw, ok := message.([]byte); ok {
		p.payloads = append(p.payloads, raw)
	}
	return redis.NewIntResult(1, nil)
}

func waitFor(t *testing.T, done chan struct{}, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for notification %d of %d", i+1, count)
		}
	}
}

func TestNotificationServiceDispatchPersistsAndPublishes(t *testing.T) {
	writer := &notificationWriterMock{done: make(chan struct{}, 4)}
	publisher := &publisherStub{}
	svc := NewNotificationService(writer, publisher, "", jobs.QueueConfig{Workers: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.Dispatch([]models.PendingNotification{{
		UserID:      "user-1",
		Kind:        models.NotificationEscrowPaid,
		Title:       "Payment held in escrow",
		Body:        "Your payment is held in escrow.",
		ReferenceID: "assign-1",
	}, {
		UserID: "user-t1",
		Kind:   models.NotificationClassEnrollmentSuccess,
		Title:  "New student enrolled",
		Body:   "A new student enrolled.",
	}})
	waitFor(t, writer.done, 2)

	writer.mu.Lock()
	defer writer.mu.Unlock()
	require.Len(t, writer.created, 2)
	assert.Equal(t, models.NotificationEscrowPaid, writer.created[0].Kind)
	require.NotNil(t, writer.created[0].ReferenceID)
	assert.Equal(t, "assign-1", *writer.created[0].ReferenceID)
	assert.Nil(t, writer.created[1].ReferenceID)

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	assert.Equal(t, []string{"notify:user:user-1", "notify:user:user-t1"}, publisher.channels)
	require.Len(t, publisher.payloads, 2)
	var delivered models.Notification
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &delivered))
	assert.Equal(t, "user-1", delivered.UserID)
}

func TestNotificationServiceDispatchBeforeStart(t *testing.T) {
	writer := &notificationWriterMock{done: make(chan struct{}, 1)}
	svc := NewNotificationService(writer, nil, "", jobs.QueueConfig{}, nil)

	// Enqueue failures are swallowed; nothing is persisted.
	svc.Dispatch([]models.PendingNotification{{UserID: "user-1", Kind: models.NotificationEscrowPaid}})
	assert.Empty(t, writer.created)
}
