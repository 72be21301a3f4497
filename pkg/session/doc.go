/*
Package session orchestrates access to persisted conversations.

A Manager serializes work on one conversation id through an in-process lock
map with reference counting, optionally backed by a distributed lock so that
several gateway replicas can share one store. Submissions use TryWithLock:
a conversation that is already being worked on is reported busy instead of
queueing a second request behind the first.
*/
package session
