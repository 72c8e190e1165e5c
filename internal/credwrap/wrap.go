// Package credwrap implements the thin credential-wrapper collaborator:
// when a submission carries a delegated credential, the payload executable
// is replaced with a self-contained bootstrap script that materializes both
// the credential and the payload on the remote node, points the credential
// env var at it, execs the payload exactly once, and exits with the
// payload's status.
package credwrap

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
)

// Wrap reads credentialPath and executablePath off local disk and returns
// the path to a self-contained wrapper script embedding both, plus a
// cleanup func the caller must invoke once dispatch completes. Embedding
// both payloads in the script (rather than pointing at their local paths)
// is what makes the single returned file sufficient to ship to a remote
// host. credEnvVar names the environment variable the payload expects the
// credential path in (e.g. "X509_USER_PROXY").
func Wrap(executablePath, credentialPath, credEnvVar string) (wrapperPath string, cleanup func(), err error) {
	credBytes, err := os.ReadFile(credentialPath)
	if err != nil {
		return "", nil, fmt.Errorf("read credential %s: %w", credentialPath, err)
	}

	payloadBytes, err := os.ReadFile(executablePath)
	if err != nil {
		return "", nil, fmt.Errorf("read executable %s: %w", executablePath, err)
	}

	tmpDir, err := os.MkdirTemp("", "jobcore-wrap-")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}

	script := fmt.Sprintf(`#!/bin/sh
set -e
base=$(CDPATH= cd -- "$(dirname -- "$0")" && pwd)
cred="$base/credential.pem"
payload="$base/payload.bin"
base64 -d <<'JOBCORE_CRED' > "$cred"
%s
JOBCORE_CRED
chmod 600 "$cred"
base64 -d <<'JOBCORE_PAYLOAD' > "$payload"
%s
JOBCORE_PAYLOAD
chmod +x "$payload"
export %s="$cred"
exec "$payload" "$@"
`,
		base64.StdEncoding.EncodeToString(credBytes),
		base64.StdEncoding.EncodeToString(payloadBytes),
		credEnvVar,
	)

	scriptPath := filepath.Join(tmpDir, "wrapper.sh")
	if err := os.WriteFile(scriptPath, []byte(script), 0700); err != nil {
		os.RemoveAll(tmpDir)
		return "", nil, fmt.Errorf("write wrapper: %w", err)
	}

	return scriptPath, func() { os.RemoveAll(tmpDir) }, nil
}
