//go:build cgo && sqlite3_cgo

package db

import (
	_ "github.com/mattn/go-sqlite3"
)

// cgo driver, opt-in via the sqlite3_cgo tag.
const (
	driverID   = "mattn/go-sqlite3"
	driverName = "sqlite3"
)
