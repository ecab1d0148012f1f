package vmc

import (
	"runtime"

	"github.com/sourcegraph/conc/pool"
)

// Evaler runs n independent per-walker tasks and joins before returning.
// Tasks share no mutable state - each writes only its own index - so
// implementations are free to run them concurrently.
type Evaler interface {
	Eval(n int, task func(i int) error) error
}

type SerialEvaler struct {
	// ContinueOnErr keeps evaluating remaining tasks after a failure and
	// returns the first error at the end.
	ContinueOnErr bool
}

func (ev SerialEvaler) Eval(n int, task func(i int) error) error {
	var first error
	for i := 0; i < n; i++ {
		if err := task(i); err != nil {
			if !ev.ContinueOnErr {
				return err
			}
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// PoolEvaler fans tasks out over a bounded goroutine pool with an explicit
// join.  The aggregation that follows a batch never starts until every task
// has finished.
type PoolEvaler struct {
	// N caps concurrent goroutines; 0 means GOMAXPROCS.
	N int
}

func (ev PoolEvaler) Eval(n int, task func(i int) error) error {
	max := ev.N
	if max <= 0 {
		max = runtime.GOMAXPROCS(0)
	}
	p := pool.New().WithMaxGoroutines(max).WithErrors()
	for i := 0; i < n; i++ {
		i := i
		p.Go(func() error { return task(i) })
	}
	return p.Wait()
}
