package detect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mardigiorgio/piguard/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(dir + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}
