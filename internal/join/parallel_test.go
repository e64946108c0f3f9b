package join

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/seqfill/internal/fasta"
)

var testIndex = fasta.NewIndex(map[string]string{"chr1": "ACGTACGTACGTACGT"})

func makeItems(n int) <-chan WorkItem {
	ch := make(chan WorkItem, n)
	for i := range n {
		ch <- WorkItem{
			Seq:    i,
			Source: testIndex,
			Intervals: []Interval{
				{Chrom: "chr1", Start: int64(i % 8), End: int64(i%8 + 4), Strand: "+"},
			},
			Extra: i,
		}
	}
	close(ch)
	return ch
}

func TestParallelResolve_OrderPreservation(t *testing.T) {
	results := ParallelResolve(makeItems(200), 8)

	var collected []int
	err := OrderedCollect(results, func(r WorkResult) error {
		require.NoError(t, r.Err)
		require.Len(t, r.Sequences, 1)
		collected = append(collected, r.Seq)
		assert.Equal(t, r.Seq, r.Extra)
		return nil
	})
	require.NoError(t, err)

	want := make([]int, 200)
	for i := range want {
		want[i] = i
	}
	if diff := cmp.Diff(want, collected); diff != "" {
		t.Errorf("collected order mismatch (-want +got):\n%s", diff)
	}
}

func TestParallelResolve_MatchesSequential(t *testing.T) {
	results := ParallelResolve(makeItems(16), 4)

	err := OrderedCollect(results, func(r WorkResult) error {
		iv := Interval{Chrom: "chr1", Start: int64(r.Seq % 8), End: int64(r.Seq%8 + 4), Strand: "+"}
		want, err := Resolve(testIndex, []Interval{iv})
		require.NoError(t, err)
		assert.Equal(t, want, r.Sequences)
		return nil
	})
	require.NoError(t, err)
}

func TestParallelResolve_DefaultWorkers(t *testing.T) {
	results := ParallelResolve(makeItems(10), 0)

	count := 0
	err := OrderedCollect(results, func(r WorkResult) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestOrderedCollect_StopsOnError(t *testing.T) {
	results := ParallelResolve(makeItems(100), 4)

	stopErr := errors.New("stop")
	var seen int
	err := OrderedCollect(results, func(r WorkResult) error {
		seen++
		if r.Seq == 9 {
			return stopErr
		}
		return nil
	})
	require.ErrorIs(t, err, stopErr)
	assert.Equal(t, 10, seen)
}

func TestParallelResolve_PropagatesResolveErrors(t *testing.T) {
	ch := make(chan WorkItem, 2)
	ch <- WorkItem{Seq: 0, Source: testIndex, Intervals: []Interval{{"chr1", 0, 4, "+"}}}
	ch <- WorkItem{Seq: 1, Source: testIndex, Intervals: []Interval{{"chrZ", 0, 4, "+"}}}
	close(ch)

	var errs []error
	err := OrderedCollect(ParallelResolve(ch, 2), func(r WorkResult) error {
		errs = append(errs, r.Err)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.NoError(t, errs[0])

	var mre *MissingReferenceRegionError
	assert.True(t, errors.As(errs[1], &mre), fmt.Sprint(errs[1]))
}

func TestOrderedCollect_HoldsBackEarlyResults(t *testing.T) {
	results := make(chan WorkResult, 4)
	for _, seq := range []int{2, 0, 3, 1} {
		results <- WorkResult{Seq: seq}
	}
	close(results)

	var got []int
	require.NoError(t, OrderedCollect(results, func(r WorkResult) error {
		got = append(got, r.Seq)
		return nil
	}))
	if diff := cmp.Diff([]int{0, 1, 2, 3}, got); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestOrderedCollect_ErrorDrainsWorkers(t *testing.T) {
	results := ParallelResolve(makeItems(50), 3)

	err := OrderedCollect(results, func(WorkResult) error {
		return errors.New("sink full")
	})
	require.Error(t, err)

	// Every worker has exited, so the channel is closed and empty.
	_, open := <-results
	assert.False(t, open)
}
