package model

// Result is the per-identifier outcome of a batch. Exactly one of
// Snapshot and Err is set.
type Result struct {
	Snapshot *PoolSnapshot
	Err      error
}

// Ok reports whether the fetch produced a snapshot.
func (r Result) Ok() bool {
	return r.Err == nil
}
