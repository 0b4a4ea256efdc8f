package sqlite

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB opens a migrated, named shared in-memory database. The name is
// derived from t.Name() so parallel tests never share state; WAL does not
// apply to memory databases.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	name := url.PathEscape(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", name)

	db, err := open(dsn, name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, RunMigrations(db.Writer))
	return db
}
