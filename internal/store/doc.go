// Package store defines interfaces for persistence dependencies (the jobs
// table and raw response archives). Implementations live in other packages;
// this package must not import database drivers or concrete clients.
package store
