package toolbus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/localai/gateway/internal/config"
)

// disabledError and invalidArgumentsError are sentinel error types the bus
// inspects to pick an outcome token (denied / invalid_arguments) without
// the tool itself knowing about the bus's taxonomy.
type disabledError struct{ tool string }

func (e *disabledError) Error() string { return fmt.Sprintf("tool %q is disabled", e.tool) }

type invalidArgumentsError struct{ reason string }

func (e *invalidArgumentsError) Error() string { return e.reason }

func errDisabled(tool string) error         { return &disabledError{tool: tool} }
func errInvalidArgs(reason string) error     { return &invalidArgumentsError{reason: reason} }
func isDisabled(err error) bool              { _, ok := err.(*disabledError); return ok }
func isInvalidArguments(err error) bool      { _, ok := err.(*invalidArgumentsError); return ok }

func parseURL(raw string) (*url.URL, error) { return url.Parse(raw) }

// Tool is one invocable action the bus exposes. Invoke never returns an
// HTTP-shaped error: a tool that ran and failed reports that failure in
// its own result map, per the outcome taxonomy in Bus.Invoke.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]interface{}
	Invoke(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)
}

// BuildTools constructs the fixed built-in tool set, feature-flagged per
// cfg. Disabled tools are still registered (so /v1/tools can report them
// and a disabled invocation produces `denied`, not `not_found`). The bus
// lists every registered tool with its schema; the listing does not omit or
// mark disabled tools.
func BuildTools(cfg config.ToolsConfig) map[string]Tool {
	tools := map[string]Tool{
		"echo": &echoTool{},
		"shell": &shellTool{
			enabled: cfg.ShellEnabled,
			allowed: toSet(cfg.ShellAllowedCmds),
			cwd:     orDefault(cfg.ShellCwd, "./data/shell"),
			timeout: orDefaultDuration(cfg.ShellTimeout, 10*time.Second),
		},
		"read_file": &readFileTool{
			enabled:  cfg.ReadFileEnabled,
			roots:    cfg.FilesystemRoots,
			maxBytes: orDefaultInt(cfg.FilesystemMaxBytes, 1<<20),
		},
		"write_file": &writeFileTool{
			enabled:  cfg.WriteFileEnabled,
			roots:    cfg.FilesystemRoots,
			maxBytes: orDefaultInt(cfg.FilesystemMaxBytes, 1<<20),
		},
		"http_fetch": &httpFetchTool{
			enabled:       cfg.HTTPFetchEnabled,
			allowedHosts:  toSet(cfg.HTTPFetchAllowedHosts),
			maxBytes:      orDefaultInt(cfg.HTTPFetchMaxBytes, 1<<20),
			timeout:       orDefaultDuration(cfg.HTTPFetchTimeout, 10*time.Second),
		},
		"git": &gitTool{
			enabled: cfg.GitEnabled,
			cwd:     orDefault(cfg.GitCwd, "./data/shell"),
			timeout: orDefaultDuration(cfg.GitTimeout, 10*time.Second),
		},
	}
	return tools
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[strings.TrimSpace(it)] = true
	}
	return out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// echoTool deterministically reflects its arguments back. Used by the
// bus's own replay tests: identical arguments always produce an
// identical result, so a replayed invocation is verifiable.
type echoTool struct{}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "Echo the given arguments back verbatim." }
func (t *echoTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"properties":           map[string]interface{}{},
		"additionalProperties": true,
	}
}
func (t *echoTool) Invoke(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"ok": true, "echo": args}, nil
}

// shellTool runs a whitelisted executable with no shell interpolation.
type shellTool struct {
	enabled bool
	allowed map[string]bool
	cwd     string
	timeout time.Duration
}

func (t *shellTool) Name() string        { return "shell" }
func (t *shellTool) Description() string { return "Run an allowlisted command (no shell=True)." }
func (t *shellTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"properties":           map[string]interface{}{"cmd": map[string]interface{}{"type": "string"}},
		"required":             []interface{}{"cmd"},
		"additionalProperties": false,
	}
}

func (t *shellTool) Invoke(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	if !t.enabled {
		return nil, errDisabled("shell")
	}
	cmd, ok := args["cmd"].(string)
	if cmd = strings.TrimSpace(cmd); !ok || cmd == "" {
		return nil, errInvalidArgs("cmd must be a non-empty string")
	}
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return nil, errInvalidArgs("cmd must be a non-empty string")
	}
	if len(t.allowed) == 0 {
		return map[string]interface{}{"ok": false, "error": "shell tool not configured (no allowed commands)"}, nil
	}
	if !t.allowed[parts[0]] {
		return map[string]interface{}{"ok": false, "error": fmt.Sprintf("command not allowed: %s", parts[0])}, nil
	}

	_ = os.MkdirAll(t.cwd, 0o750)
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmdExec := exec.CommandContext(runCtx, parts[0], parts[1:]...)
	cmdExec.Dir = t.cwd
	stdout, stderr, err := runCaptured(cmdExec)
	if err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}
	return map[string]interface{}{
		"ok":         true,
		"returncode": float64(cmdExec.ProcessState.ExitCode()),
		"stdout":     tail(stdout, 20000),
		"stderr":     tail(stderr, 20000),
	}, nil
}

// readFileTool reads a text file confined to a set of allowed roots.
type readFileTool struct {
	enabled  bool
	roots    []string
	maxBytes int
}

func (t *readFileTool) Name() string        { return "read_file" }
func (t *readFileTool) Description() string { return "Read a local text file." }
func (t *readFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"properties":           map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
		"required":             []interface{}{"path"},
		"additionalProperties": false,
	}
}

func (t *readFileTool) Invoke(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	if !t.enabled {
		return nil, errDisabled("read_file")
	}
	path, ok := args["path"].(string)
	if !ok || strings.TrimSpace(path) == "" {
		return nil, errInvalidArgs("path must be a non-empty string")
	}
	resolved, err := resolveWithinRoots(path, t.roots)
	if err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}

	f, err := os.Open(resolved)
	if err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, int64(t.maxBytes)+1))
	if err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}
	truncated := len(data) > t.maxBytes
	if truncated {
		data = data[:t.maxBytes]
	}
	return map[string]interface{}{"ok": true, "path": resolved, "truncated": truncated, "content": string(data)}, nil
}

// writeFileTool writes a text file confined to a set of allowed roots.
type writeFileTool struct {
	enabled  bool
	roots    []string
	maxBytes int
}

func (t *writeFileTool) Name() string        { return "write_file" }
func (t *writeFileTool) Description() string { return "Write a local text file." }
func (t *writeFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string"},
			"content": map[string]interface{}{"type": "string"},
		},
		"required":             []interface{}{"path", "content"},
		"additionalProperties": false,
	}
}

func (t *writeFileTool) Invoke(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	if !t.enabled {
		return nil, errDisabled("write_file")
	}
	path, ok := args["path"].(string)
	if !ok || strings.TrimSpace(path) == "" {
		return nil, errInvalidArgs("path must be a non-empty string")
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, errInvalidArgs("content must be a string")
	}
	if len(content) > t.maxBytes {
		return map[string]interface{}{"ok": false, "error": fmt.Sprintf("content too large (>%d bytes)", t.maxBytes)}, nil
	}
	resolved, err := resolveWithinRoots(path, t.roots)
	if err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o750); err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}
	if err := os.WriteFile(resolved, []byte(content), 0o640); err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}
	return map[string]interface{}{"ok": true, "path": resolved}, nil
}

// httpFetchTool performs a GET against an allowlisted host.
type httpFetchTool struct {
	enabled      bool
	allowedHosts map[string]bool
	maxBytes     int
	timeout      time.Duration
	client       *http.Client
}

func (t *httpFetchTool) Name() string        { return "http_fetch" }
func (t *httpFetchTool) Description() string { return "Fetch a URL via GET with host allowlist and size limits." }
func (t *httpFetchTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url":    map[string]interface{}{"type": "string"},
			"method": map[string]interface{}{"type": "string", "enum": []interface{}{"GET"}},
		},
		"required":             []interface{}{"url"},
		"additionalProperties": false,
	}
}

func (t *httpFetchTool) Invoke(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	if !t.enabled {
		return nil, errDisabled("http_fetch")
	}
	rawURL, ok := args["url"].(string)
	if !ok || strings.TrimSpace(rawURL) == "" {
		return nil, errInvalidArgs("url must be a non-empty string")
	}
	if method, ok := args["method"].(string); ok && method != "" && strings.ToUpper(method) != "GET" {
		return map[string]interface{}{"ok": false, "error": "only GET is supported"}, nil
	}

	host, err := hostOf(rawURL)
	if err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}
	if len(t.allowedHosts) == 0 || !t.allowedHosts[host] {
		return map[string]interface{}{"ok": false, "error": fmt.Sprintf("host not allowed: %s", host)}, nil
	}

	client := t.client
	if client == nil {
		client = &http.Client{Timeout: t.timeout}
	}
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(runCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(t.maxBytes)+1))
	if err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}
	truncated := len(body) > t.maxBytes
	if truncated {
		body = body[:t.maxBytes]
	}
	return map[string]interface{}{
		"ok":           true,
		"status":       float64(resp.StatusCode),
		"content_type": resp.Header.Get("Content-Type"),
		"truncated":    truncated,
		"body_text":    string(body),
	}, nil
}

// gitTool runs a small allowlist of read-only git subcommands.
type gitTool struct {
	enabled bool
	cwd     string
	timeout time.Duration
}

var gitAllowedSubcommands = map[string]bool{
	"status": true, "diff": true, "log": true, "show": true, "rev-parse": true, "ls-files": true,
}

func (t *gitTool) Name() string        { return "git" }
func (t *gitTool) Description() string { return "Run a limited set of read-only git subcommands." }
func (t *gitTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"args": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required":             []interface{}{"args"},
		"additionalProperties": false,
	}
}

func (t *gitTool) Invoke(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	if !t.enabled {
		return nil, errDisabled("git")
	}
	rawArgs, ok := args["args"].([]interface{})
	if !ok || len(rawArgs) == 0 {
		return nil, errInvalidArgs("args must be a non-empty list of strings")
	}
	argv := make([]string, 0, len(rawArgs))
	for _, a := range rawArgs {
		s, ok := a.(string)
		if !ok || s == "" {
			return nil, errInvalidArgs("args must be a non-empty list of strings")
		}
		argv = append(argv, s)
	}
	if !gitAllowedSubcommands[argv[0]] {
		return map[string]interface{}{"ok": false, "error": fmt.Sprintf("git subcommand not allowed: %s", argv[0])}, nil
	}

	_ = os.MkdirAll(t.cwd, 0o750)
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", argv...)
	cmd.Dir = t.cwd
	stdout, stderr, err := runCaptured(cmd)
	if err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}, nil
	}
	return map[string]interface{}{
		"ok":         true,
		"returncode": float64(cmd.ProcessState.ExitCode()),
		"stdout":     tail(stdout, 20000),
		"stderr":     tail(stderr, 20000),
	}, nil
}

func runCaptured(cmd *exec.Cmd) (stdout, stderr string, err error) {
	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	if err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			return outBuf.String(), errBuf.String(), nil
		}
		return "", "", err
	}
	return outBuf.String(), errBuf.String(), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func resolveWithinRoots(path string, roots []string) (string, error) {
	if len(roots) == 0 {
		return "", fmt.Errorf("fs tool not configured (no filesystem roots)")
	}
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(roots[0], candidate)
	}
	resolved, err := filepath.Abs(candidate)
	if err != nil {
		return "", err
	}
	for _, root := range roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(rootAbs, resolved)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("path outside allowed roots")
}

func hostOf(rawURL string) (string, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("only http/https URLs are allowed")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url must include a hostname")
	}
	return host, nil
}
