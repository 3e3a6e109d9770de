package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	return New(root, zap.NewNop()), root
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte{0}, 0o644))
}

func TestListCategory(t *testing.T) {
	svc, root := newTestService(t)
	touch(t, filepath.Join(root, "killers", "huntress.png"))
	touch(t, filepath.Join(root, "killers", "trapper.png"))
	touch(t, filepath.Join(root, "killers", ".DS_Store"))

	names, err := svc.List("killers")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"huntress.png", "trapper.png"}, names)
}

func TestListEmptyCategoryReturnsEmptySlice(t *testing.T) {
	svc, root := newTestService(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "platforms"), 0o755))

	names, err := svc.List("platforms")
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestListMissingCategory(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.List("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSubcategory(t *testing.T) {
	svc, root := newTestService(t)
	touch(t, filepath.Join(root, "addons", "Huntress", "amber.png"))

	names, err := svc.ListSub("addons", "Huntress")
	require.NoError(t, err)
	assert.Equal(t, []string{"amber.png"}, names)

	_, err = svc.ListSub("addons", "Clown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTraversalAttemptsAreNotFound(t *testing.T) {
	svc, root := newTestService(t)
	touch(t, filepath.Join(root, "secret.txt"))

	for _, name := range []string{"..", "a/b", `a\b`, "", "."} {
		_, err := svc.List(name)
		assert.ErrorIs(t, err, ErrNotFound, "name %q", name)
	}
	_, err := svc.ListSub("addons", "..")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFilterExt(t *testing.T) {
	got := FilterExt([]string{"a.png", "b.svg", "c.png"}, ".png")
	assert.Equal(t, []string{"a.png", "c.png"}, got)
}
