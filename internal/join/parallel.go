package join

import (
	"runtime"
	"sync"
)

// WorkItem is one interval table queued for resolution against Source.
type WorkItem struct {
	Seq       int // position of the table in the output
	Source    SequenceSource
	Intervals []Interval
	Extra     any // passed through to the matching WorkResult untouched
}

// WorkResult carries the sequences resolved for the WorkItem with the same Seq.
type WorkResult struct {
	Seq       int
	Sequences []string
	Err       error
	Extra     any
}

// ParallelResolve starts workers goroutines (NumCPU when workers <= 0) that
// resolve tables from items until it is closed. Results are emitted as tables
// finish, so a small table may overtake a large one; pair with OrderedCollect
// to restore table order. The returned channel closes once every worker has
// drained items. Sources are shared between goroutines and must not change.
func ParallelResolve(items <-chan WorkItem, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resolveItems(items, results)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

func resolveItems(items <-chan WorkItem, results chan<- WorkResult) {
	for item := range items {
		r := WorkResult{Seq: item.Seq, Extra: item.Extra}
		r.Sequences, r.Err = Resolve(item.Source, item.Intervals)
		results <- r
	}
}

// OrderedCollect hands results to fn strictly by Seq, starting at 0, holding
// back any that arrive early. The first error from fn stops delivery; the
// rest of the channel is discarded so workers can exit, and that error is
// returned.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	held := make(map[int]WorkResult)
	next := 0

	for r := range results {
		held[r.Seq] = r
		for {
			ready, ok := held[next]
			if !ok {
				break
			}
			delete(held, next)
			next++
			if err := fn(ready); err != nil {
				for range results {
				}
				return err
			}
		}
	}

	return nil
}
