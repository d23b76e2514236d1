package dataset

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "scadalab/internal/errors"
	"scadalab/internal/shared/testutil"
)

func newTestStore(t *testing.T) *Store {
	logger, _ := testutil.NewTestLogger(t)
	return NewStore(logger)
}

func TestStorePutGet(t *testing.T) {
	s := newTestStore(t)
	d := newDataset(t, 3)

	require.NoError(t, s.Put(d))
	got, err := s.Get(d.ID)
	require.NoError(t, err)
	assert.Same(t, d, got)
	assert.Equal(t, 1, s.Len())

	err = s.Put(d)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "duplicate_dataset", appErr.Code)

	assert.Error(t, s.Put(nil))
	assert.Error(t, s.Put(&Dataset{}))
}

func TestStoreNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("nope")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
	assert.True(t, apperrors.IsType(s.Delete("nope"), apperrors.ErrTypeNotFound))
	_, err = s.Lineage("nope")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
	_, err = s.Prune("nope")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestStoreLineageAndPrune(t *testing.T) {
	s := newTestStore(t)
	v1 := newDataset(t, 3)
	v2, err := v1.DeriveSameAxis("smooth", nil)
	require.NoError(t, err)
	v3, err := v2.DeriveSameAxis("derivative", nil)
	require.NoError(t, err)
	for _, d := range []*Dataset{v1, v2, v3} {
		require.NoError(t, s.Put(d))
	}

	chain, err := s.Lineage(v3.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{chain[0].Version, chain[1].Version, chain[2].Version})

	children := s.Children(v1.ID)
	require.Len(t, children, 1)
	assert.Equal(t, v2.ID, children[0].ID)

	removed, err := s.Prune(v3.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, s.Len())

	chain, err = s.Lineage(v3.ID)
	require.NoError(t, err)
	assert.Len(t, chain, 1, "walk stops at a missing parent")
}

func TestStoreListOrder(t *testing.T) {
	s := newTestStore(t)
	a := newDataset(t, 1)
	b := newDataset(t, 1)
	b.CreatedAt = a.CreatedAt.Add(-1)
	require.NoError(t, s.Put(a))
	require.NoError(t, s.Put(b))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)

	require.NoError(t, s.Delete(b.ID))
	assert.Len(t, s.List(), 1)
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := newDatasetNoT(1)
			_ = s.Put(d)
			_, _ = s.Get(d.ID)
			_ = s.List()
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, s.Len())
}

func newDatasetNoT(n int) *Dataset {
	d, _ := New(SourceDescriptor{}, t0, make([]float64, n), nil)
	return d
}
