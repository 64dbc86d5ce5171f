// Package detector implements the algorithmic core of the lock-order
// verifier: deriving candidate "acquired-before" edges from a goroutine's
// hold-context on every successful acquisition, checking the ordering
// graph for a contradicting path, and reporting violations through the
// process-wide sink.
//
// Detection is advisory. A violation report never changes the outcome of
// the acquisition that triggered it: the design deliberately decouples
// "did the lock succeed" from "was this a bad idea".
package detector
