package store

import (
	"errors"
	"strings"
)

// Engine names accepted by NewByEngine.
const (
	EngineJSON   = "json"
	EngineSQLite = "sqlite"
)

// NewByEngine opens the backend named by engine at path. An empty engine
// selects SQLite, which is the default for the server.
func NewByEngine(engine string, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineSQLite:
		return NewSQLiteStore(path)
	case EngineJSON:
		return NewJSONStore(path)
	default:
		return nil, errors.New("unsupported store engine: " + engine)
	}
}
