package compute

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitMappedCompletes(t *testing.T) {
	done := make(chan struct{})
	close(done)
	err := awaitMapped(func() {}, done, time.Second)
	assert.NoError(t, err)
}

func TestAwaitMappedTimesOutInsteadOfHanging(t *testing.T) {
	// A lost device never closes done; the wait must bound itself.
	done := make(chan struct{})
	polls := 0
	start := time.Now()
	err := awaitMapped(func() { polls++ }, done, 20*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Greater(t, polls, 0)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAwaitMappedLateCompletion(t *testing.T) {
	done := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(done)
	}()
	err := awaitMapped(func() {}, done, time.Second)
	assert.NoError(t, err)
}
