package countstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemCountStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	c, err := cs.GetCount(ctx, "quota", "suspend", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.Increment(ctx, "quota", "suspend"))
	assert.NoError(cs.Increment(ctx, "quota", "suspend"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCount(ctx, "quota", "suspend", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}

	// period-scoped increments touch only their own bucket
	assert.NoError(cs.IncrementPeriod(ctx, "escalated", "content", PeriodDay))
	c, err = cs.GetCount(ctx, "escalated", "content", PeriodDay)
	assert.NoError(err)
	assert.Equal(1, c)
	c, err = cs.GetCount(ctx, "escalated", "content", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)

	c, err = cs.GetCountDistinct(ctx, "scan", "conv-1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.IncrementDistinct(ctx, "scan", "conv-1", "msg-1"))
	assert.NoError(cs.IncrementDistinct(ctx, "scan", "conv-1", "msg-1"))
	assert.NoError(cs.IncrementDistinct(ctx, "scan", "conv-1", "msg-1"))
	c, err = cs.GetCountDistinct(ctx, "scan", "conv-1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)

	assert.NoError(cs.IncrementDistinct(ctx, "scan", "conv-1", "msg-2"))
	assert.NoError(cs.IncrementDistinct(ctx, "scan", "conv-1", "msg-3"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCountDistinct(ctx, "scan", "conv-1", period)
		assert.NoError(err)
		assert.Equal(3, c)
	}
}

func TestMemCountStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	// interleave writers and readers; run with -race
	var wg sync.WaitGroup
	fnInc := func(name, val string, times int) {
		for i := 0; i < times; i++ {
			assert.NoError(cs.Increment(ctx, name, val))
			assert.NoError(cs.IncrementDistinct(ctx, name, name, val))
			time.Sleep(time.Nanosecond)
		}
		wg.Done()
	}
	fnRead := func(name, val string, times int) {
		for i := 0; i < times; i++ {
			_, err := cs.GetCount(ctx, name, val, PeriodTotal)
			assert.NoError(err)
			time.Sleep(time.Nanosecond)
		}
		wg.Done()
	}
	wg.Add(6)
	go fnInc("alert-dupe", "a", 50)
	go fnInc("alert-dupe", "a", 50)
	go fnInc("alert-dupe", "b", 50)
	go fnInc("quota", "case", 50)
	go fnRead("alert-dupe", "a", 50)
	go fnRead("quota", "case", 50)
	wg.Wait()

	c, err := cs.GetCount(ctx, "alert-dupe", "a", PeriodTotal)
	assert.NoError(err)
	assert.Equal(100, c)
}

func TestRedisCountStoreBasics(t *testing.T) {
	t.Skip("TODO: skipping live test of redis countstore")
	assert := assert.New(t)
	ctx := context.Background()

	cs, err := NewRedisCountStore("redis://localhost:6379/0")
	assert.NoError(err)

	assert.NoError(cs.Increment(ctx, "quota", "suspend"))
	c, err := cs.GetCount(ctx, "quota", "suspend", PeriodDay)
	assert.NoError(err)
	assert.Equal(1, c)

	assert.NoError(cs.IncrementDistinct(ctx, "scan", "conv-1", "msg-1"))
	assert.NoError(cs.IncrementDistinct(ctx, "scan", "conv-1", "msg-1"))
	c, err = cs.GetCountDistinct(ctx, "scan", "conv-1", PeriodDay)
	assert.NoError(err)
	assert.Equal(1, c)
}
