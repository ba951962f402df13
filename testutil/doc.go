// Package testutil provides the fixtures shared by package tests: a private
// in-memory SQLite database, a miniredis server with a connected client and
// a helper that runs a component for the duration of a test.
//
//	db := testutil.NewSQLite(t, outbox.Models()...)
//	mr, client := testutil.NewRedis(t)
//	testutil.StartComponent(t, server.NewComponent(srv))
package testutil
