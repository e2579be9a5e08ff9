package cgi

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateScriptRequiresExecuteBit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o644))
	assert.Equal(t, 403, ValidateScript(path))

	require.NoError(t, os.Chmod(path, 0o755))
	assert.Equal(t, 0, ValidateScript(path))
}

func TestValidateScriptRejectsDisallowedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.rb")
	require.NoError(t, os.WriteFile(path, []byte("puts 'hi'"), 0o755))
	assert.Equal(t, 403, ValidateScript(path))
}

func TestValidateScriptMissingFileIs404(t *testing.T) {
	assert.Equal(t, 404, ValidateScript(filepath.Join(t.TempDir(), "missing.sh")))
}

func TestParseOutputSplitsHeadersAndBody(t *testing.T) {
	raw := []byte("Content-Type: text/plain\r\nStatus: 201 Created\r\n\r\nhello body")
	headers, body := ParseOutput(raw)
	assert.Equal(t, "text/plain", headers["content-type"])
	assert.Equal(t, "201 Created", headers["status"])
	assert.Equal(t, "hello body", string(body))
}

func TestParseOutputWithoutSeparatorIsAllBody(t *testing.T) {
	raw := []byte("just some text, no headers here")
	headers, body := ParseOutput(raw)
	assert.Empty(t, headers)
	assert.Equal(t, string(raw), string(body))
}

func TestEnvIncludesQueryStringOnlyWhenPresent(t *testing.T) {
	env := Env("GET", "/cgi-bin/hello.sh", "x=1")
	assert.Contains(t, env, "QUERY_STRING=x=1")
	assert.Contains(t, env, "REQUEST_METHOD=GET")
	assert.Contains(t, env, "SCRIPT_NAME=/cgi-bin/hello.sh")

	env2 := Env("GET", "/cgi-bin/hello.sh", "")
	for _, kv := range env2 {
		assert.NotContains(t, kv, "QUERY_STRING=")
	}
}

func TestSpawnRunsScriptAndCapturesOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available in test environment")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "echo.sh")
	script := "#!/bin/sh\necho 'Content-Type: text/plain'\necho ''\nprintf 'hi'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	proc, err := Spawn(path, "", Env("GET", "/cgi-bin/echo.sh", ""), nil)
	require.NoError(t, err)
	require.Equal(t, ReadingOutput, proc.State)

	deadline := time.Now().Add(2 * time.Second)
	for {
		done, rerr := proc.ReadOutput()
		require.NoError(t, rerr)
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for cgi script output")
		}
		time.Sleep(5 * time.Millisecond)
	}

	headers, body := ParseOutput(proc.OutputBytes())
	assert.Equal(t, "text/plain", headers["content-type"])
	assert.Equal(t, "hi", string(body))
	_, _ = Reap(proc.Pid)
}

func TestSpawnWritesBodyToStdin(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available in test environment")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "cat.sh")
	script := "#!/bin/sh\necho 'Content-Type: text/plain'\necho ''\ncat\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	proc, err := Spawn(path, "", Env("POST", "/cgi-bin/cat.sh", ""), []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, WritingBody, proc.State)

	deadline := time.Now().Add(2 * time.Second)
	for proc.State == WritingBody {
		require.NoError(t, proc.WriteBody())
		if time.Now().After(deadline) {
			t.Fatal("timed out writing cgi stdin")
		}
	}
	for {
		done, rerr := proc.ReadOutput()
		require.NoError(t, rerr)
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for cgi script output")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, body := ParseOutput(proc.OutputBytes())
	assert.Equal(t, "payload", string(body))
	_, _ = Reap(proc.Pid)
}
