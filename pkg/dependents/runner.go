package dependents

// Runner executes fire-and-forget background tasks. The request path never
// blocks on a submitted task and never sees its failure.
type Runner interface {
	Go(fn func())
}

// GoRunner runs each task on its own goroutine.
type GoRunner struct{}

func (GoRunner) Go(fn func()) { go fn() }

// SyncRunner runs tasks inline. For tests that need background work to
// finish before asserting.
type SyncRunner struct{}

func (SyncRunner) Go(fn func()) { fn() }
