package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	"taskhub/internal/sentinel"
	dErrors "taskhub/pkg/domain-errors"
)

// Outcomes counts how a batch of concurrent calls ended.
type Outcomes struct {
	OK        int32
	Conflicts int32
	NotFound  int32
	Failed    int32
	// Errs holds every error that was neither a conflict nor a miss.
	Errs []error
}

func (o *Outcomes) Total() int32 {
	return o.OK + o.Conflicts + o.NotFound + o.Failed
}

// RunConcurrent releases n goroutines at once and sorts their results.
// Store sentinels and domain error codes are both recognised.
func RunConcurrent(n int, fn func(i int) error) *Outcomes {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, conflicts, nf atomic.Int32
	var out Outcomes
	start := make(chan struct{})
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := fn(i)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyExists), dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
				nf.Add(1)
			default:
				mu.Lock()
				out.Errs = append(out.Errs, err)
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	out.OK, out.Conflicts, out.NotFound = ok.Load(), conflicts.Load(), nf.Load()
	out.Failed = int32(len(out.Errs))
	return &out
}
