package testsupport

import (
	"context"
	"testing"

	"vidsub/internal/config"
	"vidsub/internal/statestore"
	"vidsub/internal/workflow"
)

// MustOpenSQLite opens the state database named by cfg and closes it when
// the test ends.
func MustOpenSQLite(t testing.TB, cfg *config.Config) *statestore.SQLite {
	t.Helper()
	db, err := statestore.OpenSQLite(cfg.StateDatabasePath())
	if err != nil {
		t.Fatalf("statestore.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// MustOpenWorkflow loads the workflow store persisted under cfg.
func MustOpenWorkflow(t testing.TB, cfg *config.Config) *workflow.Store {
	t.Helper()
	policy, err := workflow.ParsePolicy(cfg.Workflow.StepPolicy)
	if err != nil {
		t.Fatalf("workflow.ParsePolicy: %v", err)
	}
	return workflow.Open(context.Background(), MustOpenSQLite(t, cfg),
		workflow.WithPolicy(policy),
		workflow.WithKey(cfg.Workflow.StateKey),
	)
}
