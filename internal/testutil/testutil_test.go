package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock(t *testing.T) {
	c := NewDeterministicClock()
	assert.Equal(t, Epoch, c.Now())
	assert.Equal(t, Epoch.Add(time.Second), c.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), c.Peek())

	c.Reset()
	assert.Equal(t, Epoch, c.Now())
}

func TestDeterministicClockConcurrent(t *testing.T) {
	c := NewDeterministicClock()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Now()
		}()
	}
	wg.Wait()
	assert.Equal(t, Epoch.Add(50*time.Second), c.Peek())
}

func TestSequenceIDGenerator(t *testing.T) {
	g := NewSequenceIDGenerator("")
	assert.Equal(t, "el-0001", g.Generate())
	assert.Equal(t, "el-0002", g.Generate())
	assert.Equal(t, "c-0001", NewSequenceIDGenerator("c").Generate())
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(t, nil)
	ct, err := reg.Resolve(context.Background(), "Customer")
	require.NoError(t, err)
	_, _, err = reg.ResolveReference(context.Background(), ct, "addresses")
	assert.NoError(t, err)
}
