package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *sql.DB {
	t.Helper()
	dbh, err := Open(context.Background(), DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })
	return dbh
}

func TestOpenCreatesSchemaIdempotently(t *testing.T) {
	dbh := openMem(t)
	require.NoError(t, ensureSchema(context.Background(), dbh, DriverSQLite))

	var n int
	require.NoError(t, dbh.QueryRow(`SELECT COUNT(*) FROM attempts`).Scan(&n))
	require.Zero(t, n)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Driver("oracle"), "")
	require.Error(t, err)
}

func TestSingleOpenAttemptIndex(t *testing.T) {
	dbh := openMem(t)
	ctx := context.Background()
	_, err := dbh.ExecContext(ctx, `INSERT INTO exams (id,title,duration_min,total_marks,passing_marks,exam_type,start_at,end_at,created_at)
		VALUES ('e1','Tajweed',60,10,5,'regular',0,10,0)`)
	require.NoError(t, err)

	ins := `INSERT INTO attempts (id,exam_id,user_id,status,started_at,updated_at) VALUES ($1,'e1','u1','pending',0,0)
		ON CONFLICT DO NOTHING`
	res, err := dbh.ExecContext(ctx, ins, "a1")
	require.NoError(t, err)
	n, _ := res.RowsAffected()
	require.EqualValues(t, 1, n)

	res, err = dbh.ExecContext(ctx, ins, "a2")
	require.NoError(t, err)
	n, _ = res.RowsAffected()
	require.EqualValues(t, 0, n, "second open attempt must be ignored")

	// once submitted the pair is free again
	_, err = dbh.ExecContext(ctx, `UPDATE attempts SET submitted_at=1 WHERE id='a1'`)
	require.NoError(t, err)
	res, err = dbh.ExecContext(ctx, ins, "a3")
	require.NoError(t, err)
	n, _ = res.RowsAffected()
	require.EqualValues(t, 1, n)
}

func TestWithTxRollsBack(t *testing.T) {
	dbh := openMem(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithTx(ctx, dbh, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (id,username,created_at) VALUES ('u1','hafiz',0)`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, dbh.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	require.Zero(t, n)

	require.NoError(t, WithTx(ctx, dbh, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO users (id,username,created_at) VALUES ('u1','hafiz',0)`)
		return err
	}))
	require.NoError(t, dbh.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	require.Equal(t, 1, n)
}
