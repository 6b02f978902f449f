//go:build !cgo_sqlite

package sqlite

import (
	"strings"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// dsn renders the ledger DSN for modernc.org/sqlite, which runs every
// _pragma=name(value) parameter on each new connection.
func dsn(path string, pragmas []pragma) string {
	if len(pragmas) == 0 {
		return path
	}
	params := make([]string, len(pragmas))
	for i, p := range pragmas {
		params[i] = "_pragma=" + p.name + "(" + p.value + ")"
	}
	return path + "?" + strings.Join(params, "&")
}
