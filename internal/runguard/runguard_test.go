package runguard

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestScopeKey_SortsTaskIDs(t *testing.T) {
	a := ScopeKey("sleep-daily", "s1", "u1", []int{3, 1, 2})
	b := ScopeKey("sleep-daily", "s1", "u1", []int{1, 2, 3})
	assert.Equal(t, a, b)
	assert.Equal(t, "sleep-daily|s1|u1|1,2,3", a)

	assert.NotEqual(t, a, ScopeKey("activity-daily", "s1", "u1", []int{1, 2, 3}))
}

func TestScopeKey_DoesNotMutateInput(t *testing.T) {
	ids := []int{9, 4}
	ScopeKey("p", "s", "u", ids)
	assert.Equal(t, []int{9, 4}, ids)
}

func TestTryEnter_RejectsSameScope(t *testing.T) {
	g := New(zerolog.Nop())

	assert.True(t, g.TryEnter("k"))
	assert.False(t, g.TryEnter("k"))
	assert.True(t, g.TryEnter("other"))

	g.Exit("k")
	assert.True(t, g.TryEnter("k"))
}

func TestTryEnter_ConcurrentCallersAdmitOne(t *testing.T) {
	g := New(zerolog.Nop())

	var admitted int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.TryEnter("same") {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), admitted)
}
