package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestShouldSkip_UnchangedContent(t *testing.T) {
	c := New()
	f := tempFile(t, "a.ts", "const x = 1\n")

	assert.False(t, c.ShouldSkip("lintcheck", "lint", f), "nothing recorded yet")

	require.NotEmpty(t, c.RecordSuccess("lintcheck", "lint", f))
	assert.True(t, c.ShouldSkip("lintcheck", "lint", f))
	assert.True(t, c.ShouldSkip("lintcheck", "lint", f), "repeated checks stay skipped")

	assert.False(t, c.ShouldSkip("lintcheck", "other", f), "keys are per hook")
	assert.False(t, c.ShouldSkip("other", "lint", f), "keys are per plugin")
}

func TestShouldSkip_ChangedContent(t *testing.T) {
	c := New()
	f := tempFile(t, "a.ts", "v1")
	c.RecordSuccess("p", "h", f)

	require.NoError(t, os.WriteFile(f, []byte("v2"), 0644))
	assert.False(t, c.ShouldSkip("p", "h", f))

	require.NoError(t, os.WriteFile(f, []byte("v1"), 0644))
	assert.True(t, c.ShouldSkip("p", "h", f), "restored content hashes the same")
}

func TestShouldSkip_HashFailureDoesNotSkip(t *testing.T) {
	c := New()
	f := tempFile(t, "gone.ts", "x")
	c.RecordSuccess("p", "h", f)
	require.NoError(t, os.Remove(f))

	assert.False(t, c.ShouldSkip("p", "h", f))
}

func TestRecordSuccess_MissingFile(t *testing.T) {
	c := New()
	assert.Empty(t, c.RecordSuccess("p", "h", filepath.Join(t.TempDir(), "missing")))
	assert.Zero(t, c.Len())
}

func TestInvalidate_AnyPluginAnyHook(t *testing.T) {
	c := New()
	f := tempFile(t, filepath.Join("src", "a.ts"), "x")
	other := tempFile(t, filepath.Join("src", "ba.ts"), "y")

	c.RecordSuccess("p1", "lint", f)
	c.RecordSuccess("p2", "types", f)
	c.RecordSuccess("p1", "lint", other)

	removed := c.Invalidate(filepath.Join("src", "a.ts"))
	assert.Equal(t, 2, removed)

	assert.False(t, c.ShouldSkip("p1", "lint", f))
	assert.False(t, c.ShouldSkip("p2", "types", f))
	assert.True(t, c.ShouldSkip("p1", "lint", other), "suffix matching respects path components")

	assert.Equal(t, 1, c.Invalidate(other))
	assert.Zero(t, c.Len())
}

func TestClear(t *testing.T) {
	c := New()
	f := tempFile(t, "a.go", "package a")
	c.RecordSuccess("p", "h", f)
	c.Clear()
	assert.False(t, c.ShouldSkip("p", "h", f))
}

func TestConcurrentWriters(t *testing.T) {
	c := New()
	f := tempFile(t, "a.go", "package a")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.RecordSuccess("p", "h", f)
		}()
		go func() {
			defer wg.Done()
			c.Invalidate(f)
		}()
	}
	wg.Wait()

	c.RecordSuccess("p", "h", f)
	assert.True(t, c.ShouldSkip("p", "h", f))
}
