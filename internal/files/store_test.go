package files

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSaveDelete(t *testing.T) {
	ctx := context.Background()
	store := Local{Dir: t.TempDir()}

	st, err := store.Save(ctx, "obj-1", "Act.PDF", []byte("pdf"))
	require.NoError(t, err)
	assert.NotEmpty(t, st.ID)
	assert.True(t, strings.HasPrefix(st.Path, "documents/obj-1/"))
	assert.True(t, strings.HasSuffix(st.Path, ".pdf"))

	full, err := store.Open(st.Path)
	require.NoError(t, err)
	data, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(data))

	require.NoError(t, store.Delete(ctx, st.Path))
	_, err = os.Stat(full)
	assert.True(t, os.IsNotExist(err))
	// deleting twice is fine
	require.NoError(t, store.Delete(ctx, st.Path))
}

func TestLocalRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store := Local{Dir: t.TempDir()}
	_, err := store.Save(ctx, "../etc", "x.txt", nil)
	assert.Error(t, err)
	assert.Error(t, store.Delete(ctx, "../../etc/passwd"))
	assert.Error(t, store.Delete(ctx, ""))
}
