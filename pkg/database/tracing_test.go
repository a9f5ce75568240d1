package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatement(t *testing.T) {
	statement := `
		SELECT id, email, activated
		FROM   accounts
		WHERE  email = $1`

	assert.Equal(t,
		"SELECT id, email, activated FROM accounts WHERE email = $1",
		normalizeStatement(statement),
	)
}

func TestNormalizeStatement_AlreadyFlat(t *testing.T) {
	assert.Equal(t, "DELETE FROM password_resets WHERE id = $1",
		normalizeStatement("DELETE FROM password_resets WHERE id = $1"))
}

func TestTraceQuery_EndIsSafeWithoutSlowQueryLogging(t *testing.T) {
	SetSlowQueryLogging(0, nil)

	ctx, end := TraceQuery(context.Background(), "Account.GetByID", "SELECT 1")
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() { end(errors.New("context canceled")) })
}

func TestSlowQueryLogging_WarnsPastThreshold(t *testing.T) {
	var buf bytes.Buffer
	SetSlowQueryLogging(time.Nanosecond, slog.New(slog.NewJSONHandler(&buf, nil)))
	defer SetSlowQueryLogging(0, nil)

	_, end := TraceQuery(context.Background(), "Account.List", "SELECT * FROM accounts")
	time.Sleep(time.Millisecond)
	end(nil)

	assert.Contains(t, buf.String(), "slow query detected")
	assert.Contains(t, buf.String(), "Account.List")
}

func TestSlowQueryLogging_QuietUnderThreshold(t *testing.T) {
	var buf bytes.Buffer
	SetSlowQueryLogging(time.Hour, slog.New(slog.NewJSONHandler(&buf, nil)))
	defer SetSlowQueryLogging(0, nil)

	_, end := TraceQuery(context.Background(), "Account.GetByID", "SELECT 1")
	end(nil)

	assert.Empty(t, buf.String())
}
