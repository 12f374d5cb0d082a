// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMCMC/services/sampler/kernel"
)

func newTestStore(t *testing.T) *SampleStore {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSampleStore(db, nil)
	require.NoError(t, err)
	return s
}

func sampleAt(i int, value float64) kernel.Sample {
	return kernel.Sample{
		Index:  i,
		Weight: 0.25,
		Snapshot: kernel.LatentSnapshot{
			Names:      []string{"theta"},
			Values:     []float64{value},
			LogDensity: -value * value / 2,
		},
		Stats: kernel.StepResult{Accepted: true, StepSize: 0.1, PathLength: 3},
	}
}

func TestOpenInMemory(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	err = db.WithTxn(context.Background(), func(txn *badger.Txn) error {
		return txn.Set([]byte("key"), []byte("value"))
	})
	require.NoError(t, err)

	err = db.WithReadTxn(context.Background(), func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("key"))
		require.NoError(t, err)
		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("value"), val)
			return nil
		})
	})
	require.NoError(t, err)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)

	_, err = Open(Config{InMemory: true, GCDiscardRatio: 2})
	assert.Error(t, err)
}

func TestWithTxn_CancelledContext(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err = db.WithTxn(ctx, func(_ *badger.Txn) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestSampleStore_AppendLoadInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Index 10 sorts after 9 only because keys are zero-padded.
	for _, i := range []int{10, 2, 9, 0} {
		require.NoError(t, s.Append(ctx, "chain-a", sampleAt(i, float64(i))))
	}

	samples, err := s.Load(ctx, "chain-a")
	require.NoError(t, err)
	require.Len(t, samples, 4)

	indexes := make([]int, len(samples))
	for i, sample := range samples {
		indexes[i] = sample.Index
	}
	assert.Equal(t, []int{0, 2, 9, 10}, indexes)
	assert.Equal(t, sampleAt(9, 9), samples[2])
}

func TestSampleStore_ChainsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "a", sampleAt(0, 1)))
	require.NoError(t, s.Append(ctx, "a-b", sampleAt(0, 2)))
	require.NoError(t, s.Append(ctx, "a-b", sampleAt(1, 3)))

	n, err := s.Count(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Count(ctx, "a-b")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	chains, err := s.Chains(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "a-b"}, chains)
}

func TestSampleStore_UnknownChainIsEmpty(t *testing.T) {
	s := newTestStore(t)

	samples, err := s.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestSampleStore_InvalidChainID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"", "a/b"} {
		assert.ErrorIs(t, s.Append(ctx, id, sampleAt(0, 0)), ErrInvalidChainID)
		_, err := s.Load(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidChainID)
	}
}

func TestSampleStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "keep", sampleAt(0, 1)))
	require.NoError(t, s.Append(ctx, "drop", sampleAt(0, 1)))
	require.NoError(t, s.Delete("drop"))

	chains, err := s.Chains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, chains)
}

func TestSampleStore_LoadCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, v := range []float64{1, 2, 3, 6} {
		require.NoError(t, s.Append(ctx, "c", sampleAt(i, v)))
	}

	c, err := s.LoadCollection(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())
	assert.InDelta(t, 1.0, c.TotalWeight(), 1e-12)
	assert.InDeltaSlice(t, []float64{3}, c.Mean(), 1e-12)
}

func TestSampleStore_AsRunSink(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state, err := kernel.NewVectorState(kernel.Variable{Name: "x", Values: []float64{0}})
	require.NoError(t, err)

	res, err := kernel.Run(ctx, &countingTransition{}, state, kernel.RunOptions{
		Iterations: 5,
		Kernel:     "test",
		ChainID:    "run-1",
		Sink:       s,
	})
	require.NoError(t, err)

	stored, err := s.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, res.Samples.Samples(), stored)
}

func TestSampleStore_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "samples")
	ctx := context.Background()

	db, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	s, err := NewSampleStore(db, nil)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "persisted", sampleAt(0, 4)))
	require.NoError(t, db.Close())

	db2, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer db2.Close()
	s2, err := NewSampleStore(db2, nil)
	require.NoError(t, err)

	samples, err := s2.Load(ctx, "persisted")
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 4.0, samples[0].Snapshot.Values[0])
}

// countingTransition moves x by one on every step after the first.
type countingTransition struct {
	phase kernel.Phase
}

func (c *countingTransition) Phase() kernel.Phase { return c.phase }

func (c *countingTransition) Step(_ context.Context, state kernel.LatentState) (kernel.StepResult, error) {
	all := kernel.NewRestrictionSet()
	if c.phase == kernel.PhaseUninitialized {
		c.phase = kernel.PhaseRunning
		return kernel.StepResult{Accepted: true}, nil
	}
	values := state.Values(all)
	values[0]++
	if err := state.SetValues(all, values); err != nil {
		return kernel.StepResult{}, err
	}
	return kernel.StepResult{Accepted: true}, nil
}
