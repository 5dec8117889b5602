package users

import (
	"context"
	"testing"

	"github.com/addspin/certgate/models"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDirectory(t *testing.T) *SqliteDirectory {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.MustExec(models.UsersSchema)
	return NewSqliteDirectory(db)
}

func TestCreateAndLookup(t *testing.T) {
	d := testDirectory(t)
	ctx := context.Background()

	uid, err := d.Create(ctx, "Mari-liis Männik", "mari-liis.mannik@eesti.ee")
	require.NoError(t, err)
	require.Greater(t, uid, int64(0))

	username, err := d.GetUserField(ctx, uid, "username")
	require.NoError(t, err)
	assert.Equal(t, "Mari-liis Männik", username)

	got, err := d.GetUidByEmail(ctx, "mari-liis.mannik@eesti.ee")
	require.NoError(t, err)
	assert.Equal(t, uid, got)
}

func TestGetUidByEmailAbsent(t *testing.T) {
	d := testDirectory(t)

	uid, err := d.GetUidByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Zero(t, uid)

	uid, err = d.GetUidByEmail(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, uid)
}

func TestSetAndGetField(t *testing.T) {
	d := testDirectory(t)
	ctx := context.Background()

	uid, err := d.Create(ctx, "Jaan Tamm", "jaan.tamm@eesti.ee")
	require.NoError(t, err)

	require.NoError(t, d.SetUserField(ctx, uid, "certcn", "37101010021"))
	cn, err := d.GetUserField(ctx, uid, "certcn")
	require.NoError(t, err)
	assert.Equal(t, "37101010021", cn)

	require.NoError(t, d.SetUserField(ctx, uid, "email:confirmed", "1"))
	confirmed, err := d.GetUserField(ctx, uid, "email:confirmed")
	require.NoError(t, err)
	assert.Equal(t, "1", confirmed)
}

func TestGetFieldMissingUser(t *testing.T) {
	d := testDirectory(t)

	cn, err := d.GetUserField(context.Background(), 999, "certcn")
	require.NoError(t, err)
	assert.Empty(t, cn)
}

func TestUnknownFieldRejected(t *testing.T) {
	d := testDirectory(t)

	_, err := d.GetUserField(context.Background(), 1, "password; DROP TABLE users")
	assert.Error(t, err)

	err = d.SetUserField(context.Background(), 1, "nope", "x")
	assert.Error(t, err)
}
