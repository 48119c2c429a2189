package notification

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureStream struct {
	mu      sync.Mutex
	updates []Update
}

func (c *captureStream) Send(u *Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, *u)
	return nil
}

func (c *captureStream) all() []Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Update, len(c.updates))
	copy(out, c.updates)
	return out
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	m := NewManager()
	s1 := &captureStream{}
	s2 := &captureStream{}
	m.Subscribe(s1)
	m.Subscribe(s2)

	m.Broadcast(&Update{Playing: true, ProgressRatio: 50})

	require.Len(t, s1.all(), 1)
	require.Len(t, s2.all(), 1)
	assert.Equal(t, 50.0, s1.all()[0].ProgressRatio)
}

func TestSequenceNumbersAreMonotonic(t *testing.T) {
	m := NewManager()
	s := &captureStream{}
	m.Subscribe(s)

	m.Broadcast(&Update{})
	m.Broadcast(&Update{})
	m.Broadcast(&Update{})

	got := s.all()
	require.Len(t, got, 3)
	assert.Equal(t, uint64(1), got[0].SequenceNo)
	assert.Equal(t, uint64(2), got[1].SequenceNo)
	assert.Equal(t, uint64(3), got[2].SequenceNo)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := NewManager()
	s := &captureStream{}
	id := m.Subscribe(s)
	assert.Equal(t, 1, m.SubscriberCount())

	m.Unsubscribe(id)
	assert.Equal(t, 0, m.SubscriberCount())

	m.Broadcast(&Update{})
	assert.Empty(t, s.all())
}
