// Package cas provides the compare-and-swap-or-retry loop shared by the
// lock-free containers.
//
// Every mutation of shared container state is written as an attempt
// function passed to Loop. An attempt loads a snapshot, computes the
// replacement and tries a single CAS. Keeping each attempt in one named
// closure keeps the linearization point of every operation in one place.
package cas

// Loop calls attempt until it reports done and returns the number of
// attempts that failed before the successful one.
//
// attempt must be safe to call repeatedly: anything it reads from shared
// state has to be reloaded on each call.
func Loop(attempt func() bool) (retries uint64) {
	for !attempt() {
		retries++
	}
	return retries
}
