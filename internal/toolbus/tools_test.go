package toolbus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localai/gateway/internal/config"
)

func TestEchoToolReflectsArguments(t *testing.T) {
	tools := BuildTools(config.ToolsConfig{})
	result, err := tools["echo"].Invoke(context.Background(), map[string]interface{}{"a": 1.0})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": 1.0}, result["echo"])
}

func TestShellToolDeniedWhenDisabled(t *testing.T) {
	tools := BuildTools(config.ToolsConfig{ShellEnabled: false})
	_, err := tools["shell"].Invoke(context.Background(), map[string]interface{}{"cmd": "echo hi"})
	require.Error(t, err)
	assert.True(t, isDisabled(err))
}

func TestShellToolRejectsDisallowedCommand(t *testing.T) {
	tools := BuildTools(config.ToolsConfig{ShellEnabled: true, ShellAllowedCmds: []string{"echo"}})
	result, err := tools["shell"].Invoke(context.Background(), map[string]interface{}{"cmd": "rm -rf /"})
	require.NoError(t, err)
	assert.False(t, result["ok"].(bool))
}

func TestShellToolRunsAllowedCommand(t *testing.T) {
	tmp := t.TempDir()
	tools := BuildTools(config.ToolsConfig{ShellEnabled: true, ShellAllowedCmds: []string{"echo"}, ShellCwd: tmp})
	result, err := tools["shell"].Invoke(context.Background(), map[string]interface{}{"cmd": "echo hello"})
	require.NoError(t, err)
	assert.True(t, result["ok"].(bool))
	assert.Contains(t, result["stdout"].(string), "hello")
}

func TestReadFileToolRejectsPathOutsideRoots(t *testing.T) {
	root := t.TempDir()
	tools := BuildTools(config.ToolsConfig{ReadFileEnabled: true, FilesystemRoots: []string{root}})
	result, err := tools["read_file"].Invoke(context.Background(), map[string]interface{}{"path": "/etc/passwd"})
	require.NoError(t, err)
	assert.False(t, result["ok"].(bool))
}

func TestWriteThenReadFileRoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg := config.ToolsConfig{ReadFileEnabled: true, WriteFileEnabled: true, FilesystemRoots: []string{root}}
	tools := BuildTools(cfg)

	wres, err := tools["write_file"].Invoke(context.Background(), map[string]interface{}{"path": "note.txt", "content": "hi there"})
	require.NoError(t, err)
	require.True(t, wres["ok"].(bool))

	rres, err := tools["read_file"].Invoke(context.Background(), map[string]interface{}{"path": "note.txt"})
	require.NoError(t, err)
	require.True(t, rres["ok"].(bool))
	assert.Equal(t, "hi there", rres["content"])
}

func TestHTTPFetchToolRejectsDisallowedHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tools := BuildTools(config.ToolsConfig{HTTPFetchEnabled: true, HTTPFetchAllowedHosts: []string{"example.com"}})
	result, err := tools["http_fetch"].Invoke(context.Background(), map[string]interface{}{"url": srv.URL})
	require.NoError(t, err)
	assert.False(t, result["ok"].(bool))
}

func TestGitToolRejectsDisallowedSubcommand(t *testing.T) {
	tools := BuildTools(config.ToolsConfig{GitEnabled: true, GitCwd: t.TempDir()})
	result, err := tools["git"].Invoke(context.Background(), map[string]interface{}{"args": []interface{}{"push"}})
	require.NoError(t, err)
	assert.False(t, result["ok"].(bool))
}

func TestGitToolInvalidArgumentsWhenArgsMissing(t *testing.T) {
	tools := BuildTools(config.ToolsConfig{GitEnabled: true})
	_, err := tools["git"].Invoke(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, isInvalidArguments(err))
}
