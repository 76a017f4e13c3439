//go:build !sqlite3_cgo

package db

import (
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// wasm-embedded driver, the default build keeps CGO_ENABLED=0 working.
const (
	driverID   = "ncruces/go-sqlite3"
	driverName = "sqlite3"
)
