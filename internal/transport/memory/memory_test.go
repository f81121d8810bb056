package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ibs-source/workers-coordinator/internal/logger"
	"github.com/ibs-source/workers-coordinator/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) ports.Logger {
	t.Helper()
	l, err := logger.NewLogrusLogger("error", "text")
	require.NoError(t, err)
	return l
}

func TestSendThenReceiveRoundTrips(t *testing.T) {
	tr := New("queue-a", newTestLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, tr.Send(ctx, "queue-a", &ports.Message{ID: "1", Body: []byte("hi")}, nil))

	msg, tx, err := tr.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "1", msg.ID)
	assert.Equal(t, []byte("hi"), msg.Body)
	tx.Commit()
}

func TestReceiveReturnsNilOnCancellation(t *testing.T) {
	tr := New("queue-b", newTestLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	msg, tx, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Nil(t, tx)
}

func TestSendFailsWhenQueueFull(t *testing.T) {
	tr := New("queue-c", newTestLogger(t))
	ctx := context.Background()

	var lastErr error
	for i := 0; i < defaultCapacity+1; i++ {
		lastErr = tr.Send(ctx, "queue-c", &ports.Message{ID: "x"}, nil)
	}
	assert.ErrorIs(t, lastErr, ErrQueueFull)
}

func TestTxCommitRunsCallbacks(t *testing.T) {
	tr := New("queue-d", newTestLogger(t))
	ctx := context.Background()
	require.NoError(t, tr.Send(ctx, "queue-d", &ports.Message{ID: "1"}, nil))

	_, tx, err := tr.Receive(ctx)
	require.NoError(t, err)

	committed := false
	tx.OnCommitted(func() { committed = true })
	tx.Commit()
	assert.True(t, committed)
}
