package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystem_NowAdvances(t *testing.T) {
	c := System{}
	a := c.Now()
	b := c.Now()
	assert.False(t, b.Before(a))
}

func TestSystem_AfterFuncFires(t *testing.T) {
	c := System{}
	done := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestSystem_StopPreventsFire(t *testing.T) {
	c := System{}
	fired := make(chan struct{}, 1)
	tm := c.AfterFunc(time.Hour, func() { fired <- struct{}{} })

	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop(), "second Stop reports already stopped")
	assert.Len(t, fired, 0)
}

func TestOrSystem(t *testing.T) {
	assert.Equal(t, System{}, OrSystem(nil))

	var custom Clock = System{}
	assert.Equal(t, custom, OrSystem(custom))
}
