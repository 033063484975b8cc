package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock_StartsAtEpoch(t *testing.T) {
	c := NewFakeClock()
	assert.Equal(t, DefaultEpoch, c.Now())
}

func TestFakeClock_AdvanceMovesTime(t *testing.T) {
	c := NewFakeClock()
	c.Advance(90 * time.Second)
	assert.Equal(t, DefaultEpoch.Add(90*time.Second), c.Now())
}

func TestFakeClock_TimerFiresOnlyWhenDue(t *testing.T) {
	c := NewFakeClock()
	fired := 0
	c.AfterFunc(5*time.Second, func() { fired++ })

	c.Advance(4 * time.Second)
	assert.Equal(t, 0, fired)
	assert.Equal(t, 1, c.Pending())

	c.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, c.Pending())

	c.Advance(time.Hour)
	assert.Equal(t, 1, fired, "timers fire once")
}

func TestFakeClock_TimersFireInDueOrder(t *testing.T) {
	c := NewFakeClock()
	var order []string
	c.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "a2") })

	c.Advance(10 * time.Second)
	assert.Equal(t, []string{"a", "a2", "b", "c"}, order)
}

func TestFakeClock_CallbackSeesDueTime(t *testing.T) {
	c := NewFakeClock()
	var seen time.Time
	c.AfterFunc(2*time.Second, func() { seen = c.Now() })

	c.Advance(time.Minute)
	assert.Equal(t, DefaultEpoch.Add(2*time.Second), seen)
	assert.Equal(t, DefaultEpoch.Add(time.Minute), c.Now())
}

func TestFakeClock_CallbackCanReschedule(t *testing.T) {
	c := NewFakeClock()
	count := 0
	var tick func()
	tick = func() {
		count++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(5 * time.Second)
	assert.Equal(t, 5, count)
	assert.Equal(t, 1, c.Pending())
}

func TestFakeClock_Stop(t *testing.T) {
	c := NewFakeClock()
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	c.Advance(time.Minute)
	assert.False(t, fired)
}

func TestFakeClock_StopAfterFire(t *testing.T) {
	c := NewFakeClock()
	tm := c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)
	assert.False(t, tm.Stop())
}

func TestFakeClock_SetBackwardsDoesNotFire(t *testing.T) {
	c := NewFakeClock()
	fired := false
	c.AfterFunc(time.Second, func() { fired = true })

	earlier := DefaultEpoch.Add(-time.Hour)
	c.Set(earlier)
	assert.Equal(t, earlier, c.Now())
	assert.False(t, fired)
}

func TestFakeClock_ThreadSafe(t *testing.T) {
	c := NewFakeClock()
	var wg sync.WaitGroup
	wg.Add(50)
	for i := 0; i < 50; i++ {
		go func() {
			defer wg.Done()
			c.AfterFunc(time.Second, func() {})
			_ = c.Now()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.Pending())
	c.Advance(time.Second)
	assert.Equal(t, 0, c.Pending())
}

func TestSequentialIDs(t *testing.T) {
	g := NewSequentialIDs("act")
	assert.Equal(t, "act-1", g.NewID())
	assert.Equal(t, "act-2", g.NewID())

	d := NewSequentialIDs("")
	assert.Equal(t, "id-1", d.NewID())
}
