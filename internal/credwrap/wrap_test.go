package credwrap

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0755))
	return path
}

func TestWrapProducesSelfContainedScript(t *testing.T) {
	executable := writeTempFile(t, "run.sh", "#!/bin/sh\necho hi\n")
	credential := writeTempFile(t, "credential.pem", "FAKE-PEM-DATA")

	path, cleanup, err := Wrap(executable, credential, "X509_USER_PROXY")
	require.NoError(t, err)
	defer cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	script := string(data)

	assert.True(t, strings.HasPrefix(script, "#!/bin/sh"))
	assert.Contains(t, script, "X509_USER_PROXY=")
	assert.Contains(t, script, "exec")

	// Both the credential and the payload content must be embedded, not
	// referenced by their local paths, since only the wrapper script
	// itself gets shipped to the remote host.
	assert.Contains(t, script, base64.StdEncoding.EncodeToString([]byte("FAKE-PEM-DATA")))
	assert.Contains(t, script, base64.StdEncoding.EncodeToString([]byte("#!/bin/sh\necho hi\n")))
	assert.NotContains(t, script, executable)
	assert.NotContains(t, script, credential)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestWrapMissingCredentialErrors(t *testing.T) {
	executable := writeTempFile(t, "run.sh", "echo hi\n")

	_, _, err := Wrap(executable, filepath.Join(t.TempDir(), "missing.pem"), "ENVVAR")
	assert.Error(t, err)
}

func TestWrapMissingExecutableErrors(t *testing.T) {
	credential := writeTempFile(t, "credential.pem", "pem")

	_, _, err := Wrap(filepath.Join(t.TempDir(), "missing.sh"), credential, "ENVVAR")
	assert.Error(t, err)
}

func TestWrapCleanupRemovesTempDir(t *testing.T) {
	executable := writeTempFile(t, "run.sh", "echo hi\n")
	credential := writeTempFile(t, "credential.pem", "pem")

	path, cleanup, err := Wrap(executable, credential, "ENVVAR")
	require.NoError(t, err)

	dir := filepath.Dir(path)
	_, err = os.Stat(dir)
	require.NoError(t, err)

	cleanup()

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
