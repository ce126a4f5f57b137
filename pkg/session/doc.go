/*
Package session serializes mutating operations per run.

A Manager hands out one ref-counted mutex per run ID, so operations on the
same run are mutually exclusive while different runs proceed in parallel.
With a DistributedLocker it also holds a cross-replica lock for the duration
of the critical section.
*/
package session
