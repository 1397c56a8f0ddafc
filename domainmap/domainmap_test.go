package domainmap_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/momentics/gripcore/domainmap"
)

func TestLookupExactMatchPreferredOverWildcard(t *testing.T) {
	dm, err := domainmap.NewFromLines([]string{
		"* backend-default:9000",
		"api.example.com backend-api:9001,backend-api2:9001",
	}, zap.NewNop())
	require.NoError(t, err)
	defer dm.Close()

	entry, ok := dm.Lookup("api.example.com")
	require.True(t, ok)
	assert.Equal(t, []string{"backend-api:9001", "backend-api2:9001"}, entry.Targets)

	entry, ok = dm.Lookup("other.example.com")
	require.True(t, ok)
	assert.Equal(t, "*", entry.Pattern)
}

func TestLookupNoMatchReturnsFalse(t *testing.T) {
	dm, err := domainmap.NewFromLines([]string{"api.example.com backend:9001"}, zap.NewNop())
	require.NoError(t, err)
	defer dm.Close()

	_, ok := dm.Lookup("nope.example.com")
	assert.False(t, ok)
}

func TestAddRouteLinePublishesChange(t *testing.T) {
	dm, err := domainmap.NewFromLines(nil, zap.NewNop())
	require.NoError(t, err)
	defer dm.Close()

	require.NoError(t, dm.AddRouteLine("svc.internal backend:7000 tls"))

	entry, ok := dm.Lookup("svc.internal")
	require.True(t, ok)
	assert.True(t, entry.TLS)

	select {
	case <-dm.Changed():
	case <-time.After(time.Second):
		t.Fatal("expected a notification on Changed()")
	}
}

func TestRouteCountReflectsCurrentTable(t *testing.T) {
	dm, err := domainmap.NewFromLines([]string{"* backend-default:9000"}, zap.NewNop())
	require.NoError(t, err)
	defer dm.Close()

	assert.Equal(t, 1, dm.RouteCount())

	require.NoError(t, dm.AddRouteLine("svc.internal backend:7000"))
	assert.Equal(t, 2, dm.RouteCount())
}

func TestNewFromFileWatchesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.txt")
	require.NoError(t, os.WriteFile(path, []byte("a.example.com backend-a:9000\n"), 0o644))

	dm, err := domainmap.NewFromFile(path, zap.NewNop())
	require.NoError(t, err)
	defer dm.Close()

	_, ok := dm.Lookup("a.example.com")
	require.True(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("b.example.com backend-b:9001\n"), 0o644))

	require.Eventually(t, func() bool {
		_, ok := dm.Lookup("b.example.com")
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}
