package fetcher

// FailureBudget counts consecutive failed or empty pages. A success resets it.
// Not safe for concurrent use; one budget belongs to one sequential run.
type FailureBudget struct {
	max int
	n   int
}

func NewFailureBudget(max int) *FailureBudget {
	if max <= 0 {
		max = 3
	}
	return &FailureBudget{max: max}
}

// Fail records one failure and reports whether the budget is now exhausted.
func (b *FailureBudget) Fail() bool {
	b.n++
	return b.Exhausted()
}

func (b *FailureBudget) Reset() { b.n = 0 }

func (b *FailureBudget) Exhausted() bool { return b.n >= b.max }

func (b *FailureBudget) Count() int { return b.n }
