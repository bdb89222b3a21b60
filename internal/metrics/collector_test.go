package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(StagePrefix+"downloading", 100*time.Millisecond)
	c.RecordTiming(StagePrefix+"downloading", 300*time.Millisecond)

	snap := c.Snapshot()
	op := snap.Operations[StagePrefix+"downloading"]
	require.NotNil(t, op)
	assert.Equal(t, int64(2), op.Count)
	assert.Equal(t, int64(100), op.MinTimeMs)
	assert.Equal(t, int64(300), op.MaxTimeMs)
	assert.InDelta(t, 200, op.AvgTimeMs, 0.001)
	assert.Nil(t, op.TotalInputTokens, "stage ops carry no token stats")
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 10, 20)
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 30, 40)

	op := c.Snapshot().Operations[OpLLMGenerate]
	require.NotNil(t, op)
	require.NotNil(t, op.TotalInputTokens)
	assert.Equal(t, int64(40), *op.TotalInputTokens)
	assert.Equal(t, int64(60), *op.TotalOutputTokens)
	assert.Equal(t, int64(10), *op.MinInputTokens)
	assert.Equal(t, int64(40), *op.MaxOutputTokens)
}

func TestTaskCounters(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.TaskSubmitted()
			c.TaskFinished(i%5 == 0)
		}(i)
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, int64(50), snap.Tasks.Submitted)
	assert.Equal(t, int64(10), snap.Tasks.Failed)
	assert.Equal(t, int64(40), snap.Tasks.Completed)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.RecordTiming("x", time.Second)
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 1, 1)
	c.TaskSubmitted()
	c.TaskFinished(true)
	assert.Empty(t, c.Snapshot().Operations)
}
