package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	tempDir := t.TempDir()

	p := NewPersistence("file://" + tempDir)
	require.NotNil(t, p)

	fp, ok := p.(*Persistence)
	require.True(t, ok)
	assert.Equal(t, tempDir, fp.root)

	assert.NoError(t, p.HealthCheck(t.Context()))
	assert.NoError(t, p.Close(t.Context()))
}

func TestPersistence_HealthCheck_MissingRoot(t *testing.T) {
	p := NewPersistence(t.TempDir() + "/missing")

	assert.Error(t, p.HealthCheck(t.Context()))
}

func TestJSONStore_ReadWrite(t *testing.T) {
	store := &jsonStore{root: t.TempDir()}

	var missing map[string]string

	found, err := store.read("things", "nope", &missing)
	require.NoError(t, err)
	assert.False(t, found)

	ids, err := store.ids("things")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.write("things", "a", map[string]string{"k": "v"}))
	require.NoError(t, store.write("things", "b", map[string]string{"k": "w"}))

	var got map[string]string

	found, err = store.read("things", "a", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", got["k"])

	ids, err = store.ids("things")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
