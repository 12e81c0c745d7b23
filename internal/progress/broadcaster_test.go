package progress

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/logger"
)

func event(jobID string, progress int) domain.ProgressEvent {
	return domain.ProgressEvent{JobID: jobID, Status: domain.JobStatusDistributing, Progress: progress}
}

func drain(sub *Subscription) []domain.ProgressEvent {
	var out []domain.ProgressEvent
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPublishReachesEverySubscriberOnce(t *testing.T) {
	b := NewBroadcaster(8, logger.Discard())
	defer b.Close()

	s1, s2 := b.Subscribe(), b.Subscribe()
	assert.NotEqual(t, s1.ID, s2.ID)

	b.Publish(event("a", 10))
	b.Publish(event("a", 20))

	for _, s := range []*Subscription{s1, s2} {
		got := drain(s)
		require.Len(t, got, 2)
		assert.Equal(t, 10, got[0].Progress)
		assert.Equal(t, 20, got[1].Progress)
		assert.Equal(t, domain.EventTypeProgress, got[0].Type)
	}
}

func TestLateSubscriberSeesOnlyFutureEvents(t *testing.T) {
	b := NewBroadcaster(8, logger.Discard())
	defer b.Close()

	b.Publish(event("a", 1))
	late := b.Subscribe()
	b.Publish(event("a", 2))

	got := drain(late)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Progress)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b := NewBroadcaster(2, logger.Discard())
	defer b.Close()

	slow := b.Subscribe()
	fast := b.Subscribe()

	received := make(chan int, 10)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range fast.C {
			received <- ev.Progress
		}
	}()

	for i := 1; i <= 3; i++ {
		b.Publish(event("a", i))
		// let the fast reader keep up
		require.Eventually(t, func() bool { return len(received) == i }, time.Second, time.Millisecond)
	}

	assert.Equal(t, 1, b.Subscribers())
	got := drain(slow)
	assert.Len(t, got, 2, "buffered events are still readable before the close")

	b.Unsubscribe(fast.ID)
	wg.Wait()
	assert.Zero(t, b.Subscribers())
}

func TestPerJobOrderUnderConcurrentPublishers(t *testing.T) {
	b := NewBroadcaster(1000, logger.Discard())
	defer b.Close()
	sub := b.Subscribe()

	var wg sync.WaitGroup
	for j := 0; j < 4; j++ {
		wg.Add(1)
		go func(job string) {
			defer wg.Done()
			for p := 0; p < 100; p++ {
				b.Publish(event(job, p))
			}
		}(fmt.Sprintf("job-%d", j))
	}
	wg.Wait()

	last := map[string]int{}
	for _, ev := range drain(sub) {
		prev, seen := last[ev.JobID]
		if seen {
			assert.Equal(t, prev+1, ev.Progress, "job %s out of order", ev.JobID)
		}
		last[ev.JobID] = ev.Progress
	}
	assert.Len(t, last, 4)
}

func TestUnsubscribeAndClose(t *testing.T) {
	b := NewBroadcaster(4, logger.Discard())
	s := b.Subscribe()

	b.Unsubscribe(s.ID)
	b.Unsubscribe(s.ID)
	_, ok := <-s.C
	assert.False(t, ok)

	other := b.Subscribe()
	b.Close()
	_, ok = <-other.C
	assert.False(t, ok)

	b.Publish(event("a", 1))
	afterClose := b.Subscribe()
	_, ok = <-afterClose.C
	assert.False(t, ok)
	b.Close()
}
