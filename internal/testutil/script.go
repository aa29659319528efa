package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ShellScript writes body to an executable sh script in a temporary directory
// and returns a command prefix that runs it. Positional arguments appended
// to the prefix are visible to the script as $1, $2, ...
func ShellScript(t *testing.T, body string) []string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh is not available")
	}
	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return []string{sh, path}
}
