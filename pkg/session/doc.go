/*
Package session serializes access to thread checkpoints.

A Manager guarantees a single writer per thread inside one process with a
reference-counted mutex per thread ID, and across replicas when configured
with a ports.DistributedLocker. Turns run inside WithLock and write their
checkpoints through Store directly, since the per-thread mutex is not reentrant.
*/
package session
