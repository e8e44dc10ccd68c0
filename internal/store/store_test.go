package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardwatch/pkg/model"
)

func rec(id string, users int) model.EnrichedRecord {
	return model.EnrichedRecord{AppRecord: model.AppRecord{AppID: id}, TotalUsers: users}
}

func TestUpsertReplacesWholeValue(t *testing.T) {
	s := New()
	s.Upsert("A", model.EnrichedRecord{AppRecord: model.AppRecord{AppID: "A", AppName: "old"}, TotalUsers: 1})
	s.Upsert("A", rec("A", 2))

	require.Equal(t, 1, s.Size())
	got, ok := s.Get("A")
	require.True(t, ok)
	assert.Equal(t, 2, got.TotalUsers)
	assert.Empty(t, got.AppName, "no field-level merge")

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestUpsertIdempotent(t *testing.T) {
	s := New()
	s.Upsert("A", rec("A", 5))
	s.Upsert("A", rec("A", 5))
	assert.Equal(t, 1, s.Size())
	assert.Equal(t, []model.EnrichedRecord{rec("A", 5)}, s.Values())
}

func TestValuesIsSnapshot(t *testing.T) {
	s := New()
	s.Upsert("A", rec("A", 1))
	s.Upsert("B", rec("B", 2))
	s.Upsert("A", rec("A", 3))

	vals := s.Values()
	require.Len(t, vals, 2)
	assert.Equal(t, "A", vals[0].AppID, "first-seen order is kept on overwrite")
	assert.Equal(t, 3, vals[0].TotalUsers)

	// 迭代过程中写入不影响快照
	for _, v := range vals {
		s.Upsert(v.AppID+"x", v)
	}
	assert.Len(t, vals, 2)
	assert.Equal(t, 4, s.Size())
}

func TestReset(t *testing.T) {
	s := New()
	s.Upsert("A", rec("A", 1))
	s.Reset()
	assert.Zero(t, s.Size())
	assert.Empty(t, s.Values())
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Upsert(fmt.Sprintf("k%d", j%10), rec("x", i))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Values()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, s.Size())
}
