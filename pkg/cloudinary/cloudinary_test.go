package cloudinary

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPublicIDSanitisesName(t *testing.T) {
	require.Equal(t, "bai_tap-1.py", PublicID("bai_tap 1.py"))
	require.Equal(t, "lab.zip", PublicID("../../lab.zip"))
	require.Equal(t, "upload", PublicID("..."))
}

func TestFolderFor(t *testing.T) {
	require.Equal(t, "dsa/submissions/job-1", FolderFor("/dsa/submissions/", "job-1"))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)
}
