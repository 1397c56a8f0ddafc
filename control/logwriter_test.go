package control

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFileReopenPicksUpFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gripcore.log")

	r, err := NewRotatingFile(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Write([]byte("before rotation\n"))
	require.NoError(t, err)

	require.NoError(t, os.Rename(path, path+".1"))
	require.NoError(t, r.Reopen())

	_, err = r.Write([]byte("after rotation\n"))
	require.NoError(t, err)

	old, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "before rotation\n", string(old))

	fresh, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after rotation\n", string(fresh))
}
