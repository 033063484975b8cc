package connectivity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonitor_NotifiesOnlyOnChange(t *testing.T) {
	m := NewMonitor(State{Online: true})
	var got []Change
	m.Subscribe(func(c Change) { got = append(got, c) })

	assert.False(t, m.Set(State{Online: true}))
	assert.True(t, m.Set(State{Online: false}))
	assert.False(t, m.Set(State{Online: false}))
	assert.True(t, m.Set(State{Online: true, Slow: true}))

	assert.Len(t, got, 2)
	assert.True(t, got[0].WentOffline())
	assert.False(t, got[0].CameOnline())
	assert.True(t, got[1].CameOnline())
	assert.Equal(t, State{Online: true, Slow: true}, m.State())
	assert.True(t, m.Online())
}

func TestMonitor_SlowHintAloneIsAChange(t *testing.T) {
	m := NewMonitor(State{Online: true})
	var got []Change
	m.Subscribe(func(c Change) { got = append(got, c) })

	m.Set(State{Online: true, Slow: true})
	assert.Len(t, got, 1)
	assert.False(t, got[0].CameOnline())
	assert.False(t, got[0].WentOffline())
}

func TestMonitor_UnsubscribeIdempotent(t *testing.T) {
	m := NewMonitor(State{})
	var a, b int
	unsubA := m.Subscribe(func(Change) { a++ })
	m.Subscribe(func(Change) { b++ })

	m.Set(State{Online: true})
	unsubA()
	unsubA()
	m.Set(State{})

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestMonitor_SubscriberMayResubscribe(t *testing.T) {
	m := NewMonitor(State{})
	calls := 0
	var unsub func()
	unsub = m.Subscribe(func(Change) {
		calls++
		unsub()
		m.Subscribe(func(Change) { calls += 10 })
	})

	m.Set(State{Online: true})
	assert.Equal(t, 1, calls)
	m.Set(State{})
	assert.Equal(t, 11, calls)
}

func TestFromQuality(t *testing.T) {
	assert.Equal(t, State{Online: true, Slow: true}, FromQuality(true, QualityPoor))
	assert.Equal(t, State{Online: true, Slow: true}, FromQuality(true, QualityFair))
	assert.Equal(t, State{Online: true}, FromQuality(true, QualityGood))
	assert.Equal(t, State{}, FromQuality(false, QualityUnknown))
}
