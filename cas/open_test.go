package cas

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SchemeDispatch(t *testing.T) {
	memDB, err := Open("mem://")
	require.NoError(t, err)
	assert.IsType(t, &InMemoryDatabase{}, memDB)

	fileDB, err := Open("file://" + t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &FileDatabase{}, fileDB)

	sqliteDB, err := Open("sqlite://" + filepath.Join(t.TempDir(), "cas.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteDatabase{}, sqliteDB)
	sqliteDB.Close()
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	_, err := Open("grpc://localhost:9000")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestOpen_DatabasesInteroperate(t *testing.T) {
	ctx := context.Background()
	db, err := Open("file://" + t.TempDir())
	require.NoError(t, err)

	id, err := db.Put(ctx, nil, []byte("via url"))
	require.NoError(t, err)

	mem, err := Open("mem://")
	require.NoError(t, err)
	sameID, err := mem.Identify(ctx, nil, []byte("via url"))
	require.NoError(t, err)
	assert.Equal(t, id, sameID)
}
