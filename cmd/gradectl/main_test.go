package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"
)

func TestCLIDefaultsToLocalServerPort(t *testing.T) {
	source := filepath.Join(t.TempDir(), "sort.py")
	require.NoError(t, os.WriteFile(source, []byte("print(1)"), 0o600))

	var parsed cli
	parser, err := kong.New(&parsed)
	require.NoError(t, err)
	_, err = parser.Parse([]string{source})
	require.NoError(t, err)

	if os.Getenv("GRADER_URL") == "" {
		require.Equal(t, "http://localhost:8000", parsed.Server)
	}
	require.Equal(t, []string{source}, parsed.Files)
}
