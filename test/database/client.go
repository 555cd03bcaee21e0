// Package database provisions isolated PostgreSQL-backed stores for tests,
// grounded in the teacher's test/database.NewTestClient wiring
// (codeready-toolchain/tarsy), adapted from ent's schema auto-migration to
// promptctl's embedded golang-migrate migrations.
package database

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/agentlightning/promptctl/pkg/store"
	"github.com/agentlightning/promptctl/test/util"
)

// TestStore bundles a Store bound to its own schema-isolated database
// connection pool, so tests can run concurrently against the same shared
// testcontainer without interfering with each other.
type TestStore struct {
	Store store.Store
	DB    *sqlx.DB
}

// NewTestStore creates a uniquely-named schema on the shared test database,
// applies promptctl's migrations into it, and registers cleanup to drop the
// schema and close the pool when the test ends.
func NewTestStore(t *testing.T) *TestStore {
	t.Helper()

	baseConnStr := util.GetBaseConnectionString(t)
	schemaName := util.GenerateSchemaName(t)
	util.CreateSchema(t, baseConnStr, schemaName)
	t.Cleanup(func() { util.DropSchema(t, baseConnStr, schemaName) })

	connStr := util.AddSearchPathToConnString(baseConnStr, schemaName)
	st, db, err := store.Connect(store.DefaultConfig(connStr))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &TestStore{Store: st, DB: db}
}
