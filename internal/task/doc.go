// Package task implements the cooperative, single-threaded work queues that
// own alertd's component state.
//
// Cross-component calls are posts: the caller appends a closure to the target
// queue and returns. Results travel back the same way, as a closure posted to
// the caller's queue.
package task
