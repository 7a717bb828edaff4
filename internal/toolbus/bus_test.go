package toolbus

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localai/gateway/internal/config"
)

func testBus(t *testing.T) *Bus {
	t.Helper()
	dir := t.TempDir()
	logger, err := NewLogger("ndjson", filepath.Join(dir, "tools.ndjson"), filepath.Join(dir, "invocations"))
	require.NoError(t, err)
	tools := BuildTools(config.ToolsConfig{})
	return New(tools, logger)
}

func TestInvokeUnknownToolIsNotFound(t *testing.T) {
	b := testBus(t)
	inv := b.Invoke(context.Background(), "does_not_exist", nil, nil)
	assert.Equal(t, OutcomeNotFound, inv.Outcome)
}

func TestInvokeOutsideAllowlistIsDenied(t *testing.T) {
	b := testBus(t)
	inv := b.Invoke(context.Background(), "echo", map[string]interface{}{"x": 1.0}, []string{"shell"})
	assert.Equal(t, OutcomeDenied, inv.Outcome)
}

func TestInvokeEchoSucceeds(t *testing.T) {
	b := testBus(t)
	inv := b.Invoke(context.Background(), "echo", map[string]interface{}{"x": 1.0}, nil)
	assert.Equal(t, OutcomeOK, inv.Outcome)
	assert.NotEmpty(t, inv.RequestHash)
	assert.NotEmpty(t, inv.ReplayID)
}

func TestInvokeSameArgumentsProduceSameRequestHash(t *testing.T) {
	b := testBus(t)
	inv1 := b.Invoke(context.Background(), "echo", map[string]interface{}{"x": 1.0, "y": "a"}, nil)
	inv2 := b.Invoke(context.Background(), "echo", map[string]interface{}{"y": "a", "x": 1.0}, nil)
	assert.Equal(t, inv1.RequestHash, inv2.RequestHash)
	assert.NotEqual(t, inv1.ReplayID, inv2.ReplayID)
}

func TestInvokeLogsCanonicalArgumentsNotRawInput(t *testing.T) {
	b := testBus(t)
	decomposed := "e\u0301cho" // "e" + combining acute accent, not NFC
	composed := "\u00e9cho"
	inv := b.Invoke(context.Background(), "echo", map[string]interface{}{"x": decomposed}, nil)
	assert.Equal(t, OutcomeOK, inv.Outcome)
	assert.Equal(t, composed, inv.Arguments["x"])
}

func TestInvokeDisabledToolIsDenied(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger("ndjson", filepath.Join(dir, "tools.ndjson"), filepath.Join(dir, "invocations"))
	require.NoError(t, err)
	tools := BuildTools(config.ToolsConfig{ShellEnabled: false})
	b := New(tools, logger)

	inv := b.Invoke(context.Background(), "shell", map[string]interface{}{"cmd": "echo hi"}, nil)
	assert.Equal(t, OutcomeDenied, inv.Outcome)
}

func TestListRespectsAllowlist(t *testing.T) {
	b := testBus(t)
	all := b.List(nil)
	assert.Greater(t, len(all), 1)

	limited := b.List([]string{"echo"})
	require.Len(t, limited, 1)
	assert.Equal(t, "echo", limited[0].Name)
}

func TestGetReturnsFalseWhenNotAllowed(t *testing.T) {
	b := testBus(t)
	_, ok := b.Get("shell", []string{"echo"})
	assert.False(t, ok)

	_, ok = b.Get("echo", []string{"echo"})
	assert.True(t, ok)
}
