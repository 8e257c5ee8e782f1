package sos

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/lifeline/internal/models"
)

func receive(t *testing.T, sub *Subscription) StatusChange {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return v.(StatusChange)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status change")
	}
	return StatusChange{}
}

func TestFeed_DeliversToOwnerOnly(t *testing.T) {
	f := NewFeed()
	defer f.Close()

	mine := f.Subscribe("u1")
	defer mine.Cancel()
	theirs := f.Subscribe("u2")
	defer theirs.Cancel()

	f.Publish(StatusChange{EventID: "e1", UserID: "u1", Status: models.StatusSent})
	f.Publish(StatusChange{EventID: "e2", UserID: "u2", Status: models.StatusFailed})

	assert.Equal(t, "e1", receive(t, mine).EventID)
	assert.Equal(t, "e2", receive(t, theirs).EventID)
}

func TestFeed_NilIsNoop(t *testing.T) {
	var f *Feed
	assert.NotPanics(t, func() { f.Publish(StatusChange{UserID: "u1"}) })
}

func TestFeed_CloseEndsSubscriptions(t *testing.T) {
	f := NewFeed()
	sub := f.Subscribe("u1")
	f.Close()

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed by Close")
	}
	assert.NotPanics(t, sub.Cancel)
	assert.NotPanics(t, func() { f.Publish(StatusChange{UserID: "u1"}) })

	late := f.Subscribe("u1")
	_, ok := <-late.C()
	assert.False(t, ok)
	f.Close()
}

func TestFeed_CancelIsIdempotent(t *testing.T) {
	f := NewFeed()
	defer f.Close()
	sub := f.Subscribe("u1")
	sub.Cancel()
	sub.Cancel()
}

func TestFeed_CancelRacingClose(t *testing.T) {
	before := runtime.NumGoroutine()

	for i := 0; i < 100; i++ {
		f := NewFeed()
		subs := []*Subscription{f.Subscribe("u1"), f.Subscribe("u1"), f.Subscribe("u2")}
		f.Publish(StatusChange{UserID: "u1", Status: models.StatusSent})

		var wg sync.WaitGroup
		for _, sub := range subs {
			wg.Add(1)
			go func(sub *Subscription) {
				defer wg.Done()
				sub.Cancel()
			}(sub)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Close()
		}()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: Cancel and Close did not both return", i)
		}
	}

	// Nothing is left blocked on the stopped hub.
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+5
	}, 2*time.Second, 10*time.Millisecond)
}
