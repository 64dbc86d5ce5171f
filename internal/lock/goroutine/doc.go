// Package goroutine implements the per-goroutine hold-context: the ordered
// set of tracked locks a goroutine currently holds.
//
// A HoldContext is owned exclusively by the goroutine it was allocated for
// and is therefore completely unsynchronized. It supplies the candidate
// "acquired-before" edges on every acquisition: each lock already in the
// context was held at the moment the new lock was taken.
package goroutine
