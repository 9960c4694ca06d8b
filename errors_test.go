package branchmigrate

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	t.Run("configuration errors are detected through wrapping", func(t *testing.T) {
		err := pkgerrors.Wrap(&ConfigurationError{Reason: "unsupported engine"}, "resolving branch")
		assert.True(t, IsConfigurationError(err))
		assert.False(t, IsConnectivityError(err))
	})

	t.Run("connectivity errors unwrap to their cause", func(t *testing.T) {
		cause := errors.New("dial tcp: connection refused")
		err := &ConnectivityError{Err: cause}
		assert.True(t, IsConnectivityError(err))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("script errors carry the failing unit", func(t *testing.T) {
		cause := errors.New("syntax error near CREATE")
		err := &MigrationScriptError{UnitID: 3, UnitName: "create_orders", Err: cause}
		assert.True(t, IsMigrationScriptError(err))
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "migration 3")
		assert.Contains(t, err.Error(), "create_orders")
	})

	t.Run("rollback errors are distinct from migration errors", func(t *testing.T) {
		err := &RollbackScriptError{UnitID: 2, UnitName: "create_users_email_idx", Err: errors.New("no such index")}
		assert.True(t, IsRollbackScriptError(err))
		assert.False(t, IsMigrationScriptError(err))
		assert.Contains(t, err.Error(), "rollback of migration 2")
	})

	t.Run("helpers reject unrelated errors", func(t *testing.T) {
		err := errors.New("plain failure")
		assert.False(t, IsConfigurationError(err))
		assert.False(t, IsConnectivityError(err))
		assert.False(t, IsMigrationScriptError(err))
		assert.False(t, IsRollbackScriptError(err))
	})
}

func TestSentinelErrors(t *testing.T) {
	wrapped := pkgerrors.Wrap(ErrOperationInProgress, "apply branch-1")
	assert.ErrorIs(t, wrapped, ErrOperationInProgress)
	assert.NotErrorIs(t, wrapped, ErrManualInterventionRequired)
}
