package store

import (
	"fmt"
	"strings"

	"github.com/xraph/taskq"
)

// Supported connection schemes.
const (
	SchemeSQLite = "sqlite"
	SchemePG     = "pg"
	SchemeHTTP   = "http"
	SchemeHTTPS  = "https"
)

const connFormat = "connection must be of format <type>://<connection string>"

// Connection is a parsed "<scheme>://<body>" connection string.
type Connection struct {
	Scheme string
	Body   string
}

func (c Connection) String() string {
	return c.Scheme + "://" + c.Body
}

// ParseConnection validates s without connecting.
func ParseConnection(s string) (Connection, error) {
	scheme, body, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		return Connection{}, fmt.Errorf("%w: %s", taskq.ErrInvalidConnection, connFormat)
	case scheme == "":
		return Connection{}, fmt.Errorf("%w: missing handler type, %s", taskq.ErrInvalidConnection, connFormat)
	case body == "":
		return Connection{}, fmt.Errorf("%w: missing connection string, %s", taskq.ErrInvalidConnection, connFormat)
	}

	switch scheme {
	case SchemeSQLite, SchemePG, SchemeHTTP, SchemeHTTPS:
		return Connection{Scheme: scheme, Body: body}, nil
	}
	return Connection{}, fmt.Errorf("%w: unsupported handler type %q (supported: sqlite, pg, http, https)",
		taskq.ErrInvalidConnection, scheme)
}
