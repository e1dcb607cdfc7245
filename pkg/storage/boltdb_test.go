package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiperf-project/aiperf-core/pkg/storage"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

func TestBoltRecordStoreAppendAndReplay(t *testing.T) {
	store, err := storage.NewBoltRecordStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	want := []types.MetricRecordInfo{
		{Metadata: types.MetricRecordMetadata{RequestID: "req-1"}, Metrics: map[string]types.MetricValueUnit{"ttft": {Value: 1, Unit: "ms"}}},
		{Metadata: types.MetricRecordMetadata{RequestID: "req-2"}, Metrics: map[string]types.MetricValueUnit{"ttft": {Value: 2, Unit: "ms"}}},
	}
	for _, rec := range want {
		require.NoError(t, store.Append(rec))
	}

	var got []types.MetricRecordInfo
	require.NoError(t, store.ForEach(func(rec types.MetricRecordInfo) error {
		got = append(got, rec)
		return nil
	}))

	require.Len(t, got, 2)
	require.Equal(t, "req-1", got[0].Metadata.RequestID)
	require.Equal(t, "req-2", got[1].Metadata.RequestID)
}

func TestBoltRecordStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := storage.NewBoltRecordStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Append(types.MetricRecordInfo{Metadata: types.MetricRecordMetadata{RequestID: "req-1"}}))
	require.NoError(t, store.Close())

	reopened, err := storage.NewBoltRecordStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	var count int
	require.NoError(t, reopened.ForEach(func(types.MetricRecordInfo) error {
		count++
		return nil
	}))
	require.Equal(t, 1, count)
}
