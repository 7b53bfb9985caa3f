//go:build !cgo

package db

import _ "modernc.org/sqlite"

const driverName = "sqlite"
