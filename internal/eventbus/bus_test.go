package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: SiteChecked, SiteID: "site_1"})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			assert.Equal(t, SiteChecked, e.Type)
			assert.Equal(t, "site_1", e.SiteID)
			assert.False(t, e.Time.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: SiteFailed})
	b.Publish(Event{Type: SiteFailed})
	assert.Len(t, ch, 1)
	assert.Equal(t, uint64(1), b.Dropped())
}

func TestSubscribeFiltersTypes(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4, SiteToggled, CountdownExpired)
	defer unsub()

	b.Publish(Event{Type: SiteChecked})
	b.Publish(Event{Type: SiteToggled, SiteID: "site_2"})
	b.Publish(Event{Type: NotificationSent})

	require.Len(t, ch, 1)
	e := <-ch
	assert.Equal(t, SiteToggled, e.Type)
	assert.Equal(t, "site_2", e.SiteID)
	assert.Zero(t, b.Dropped())
}

func TestPublishAfterUnsubscribe(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	unsub()
	unsub()
	b.Publish(Event{Type: NotificationSent})
}

func TestCounter(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(8)
	c := NewCounter()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, ch)
		close(done)
	}()

	b.Publish(Event{Type: SiteChecked})
	b.Publish(Event{Type: SiteChecked})
	b.Publish(Event{Type: SiteFailed})

	require.Eventually(t, func() bool {
		s := c.Snapshot()
		return s[SiteChecked] == 2 && s[SiteFailed] == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	unsub()
	<-done
}
