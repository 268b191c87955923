// Package db is the facade the rest of an application embeds: one
// operation log plus one persistent Map, with every mutation routed
// commit-first through the log so replicas sharing a remote converge on the
// same state by replaying each other's ops.
package db
