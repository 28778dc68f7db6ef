package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheBuildsOncePerKey(t *testing.T) {
	c := NewCache[string, *int]()
	var builds atomic.Int32

	var wg sync.WaitGroup
	results := make([]*int, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCreate("qwen2.5:7b", func() (*int, error) {
				builds.Add(1)
				n := 42
				return &n, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.Equal(t, 1, c.Len())
}

func TestCacheDoesNotKeepFailures(t *testing.T) {
	c := NewCache[string, int]()
	_, err := c.GetOrCreate("llama3", func() (int, error) { return 0, errors.New("unreachable") })
	require.Error(t, err)
	assert.Zero(t, c.Len())

	v, err := c.GetOrCreate("llama3", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = c.GetOrCreate("mistral", func() (int, error) { return 9, nil })
	require.NoError(t, err)
	assert.Equal(t, 9, v)
	assert.Equal(t, 2, c.Len())
}

func TestCacheRecoversFromPanickingBuild(t *testing.T) {
	c := NewCache[string, int]()
	assert.Panics(t, func() {
		_, _ = c.GetOrCreate("llama3", func() (int, error) { panic("bad config") })
	})
	assert.Equal(t, 0, c.Len())

	done := make(chan struct{})
	go func() {
		defer close(done)
		v, err := c.GetOrCreate("llama3", func() (int, error) { return 7, nil })
		assert.NoError(t, err)
		assert.Equal(t, 7, v)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("GetOrCreate blocked after a panicking build")
	}
}
