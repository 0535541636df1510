package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	cfg := ClientConfig{
		Host:         "ch",
		Port:         9000,
		Database:     "macropanel",
		User:         "default",
		Password:     "secret",
		DialTimeout:  5 * time.Second,
		MaxExecTime:  time.Minute,
		AsyncInsert:  true,
		WaitForAsync: true,
	}
	assert.Equal(t,
		"clickhouse://default:secret@ch:9000/macropanel?async_insert=1&dial_timeout=5s&max_execution_time=60&wait_for_async_insert=1",
		buildDSN(cfg))

	cfg.UseHTTP = true
	cfg.AsyncInsert = false
	assert.Equal(t,
		"http://default:secret@ch:9000/macropanel?dial_timeout=5s&max_execution_time=60",
		buildDSN(cfg))
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(WithDatabase("x"))
	assert.Error(t, err)
}

func TestInitSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	stmts := PanelSchema("macropanel")
	require.Len(t, stmts, 3)
	for range stmts {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, NewFromDB(db).InitSchema(context.Background(), stmts))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPanelSchemaKeysScoresByRun(t *testing.T) {
	stmts := PanelSchema("macropanel")
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[1], "ORDER BY (xcat, cid, real_date)")
	assert.Contains(t, stmts[2], "macropanel.panel_scores")
	assert.Contains(t, stmts[2], "ORDER BY (xcat, run_id, cid, real_date)")
}

func TestInsertBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO t")
	prep.ExpectExec().WithArgs("a", 1.0).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("b", 2.0).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = NewFromDB(db).InsertBatch(context.Background(), "INSERT INTO t (k, v)", [][]any{{"a", 1.0}, {"b", 2.0}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, NewFromDB(db).InsertBatch(context.Background(), "INSERT INTO t", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
