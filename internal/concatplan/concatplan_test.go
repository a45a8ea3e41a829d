package concatplan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/liveforge/streamctl/internal/domain/stream/model"
	"github.com/stretchr/testify/require"
)

func TestBuild_EmptyPlaylist(t *testing.T) {
	_, err := Build(t.TempDir(), "sess-1", nil)
	require.ErrorIs(t, err, model.ErrEmptyPlaylist)
}

func TestBuild_WritesOneLinePerAssetInOrder(t *testing.T) {
	dir := t.TempDir()
	path, err := Build(dir, "sess-1", []string{"a.mp4", "b.mp4"})
	require.NoError(t, err)
	require.FileExists(t, path)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)

	absA, _ := filepath.Abs("a.mp4")
	absB, _ := filepath.Abs("b.mp4")
	require.Equal(t, "file '"+absA+"'\nfile '"+absB+"'\n", string(contents))
}

func TestBuild_EscapesSingleQuotes(t *testing.T) {
	dir := t.TempDir()
	path, err := Build(dir, "sess-1", []string{"it's a clip.mp4"})
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `it'\''s a clip.mp4`)
}

func TestRemove_MissingFileIsNotAnError(t *testing.T) {
	require.NoError(t, Remove(filepath.Join(t.TempDir(), "missing.concat")))
	require.NoError(t, Remove(""))
}
