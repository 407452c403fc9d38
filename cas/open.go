package cas

import (
	"fmt"
	"net/url"
)

// Open selects and constructs a database from a scheme URL:
//
//	mem://                 in-memory
//	file:///path/to/state  file-backed, rooted at the path
//	sqlite:///path/cas.db  SQLite-backed
//
// Remote schemes (grpc://, bazel://) belong to external adapters; Open
// reports them as unsupported rather than guessing at a transport.
func Open(rawURL string) (Database, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("open cas %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "mem":
		return NewInMemoryDatabase(), nil
	case "file":
		return OpenFileDatabase(u.Path)
	case "sqlite":
		return OpenSQLiteDatabase(u.Path)
	default:
		return nil, fmt.Errorf("open cas %q: scheme %q: %w", rawURL, u.Scheme, ErrUnsupported)
	}
}
