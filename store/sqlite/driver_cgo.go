//go:build cgo_sqlite

package sqlite

import (
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

// dsn renders the ledger DSN for mattn/go-sqlite3, which takes each
// pragma as its own _name=value query parameter.
func dsn(path string, pragmas []pragma) string {
	if len(pragmas) == 0 {
		return path
	}
	params := make([]string, len(pragmas))
	for i, p := range pragmas {
		params[i] = "_" + p.name + "=" + p.value
	}
	return path + "?" + strings.Join(params, "&")
}
