package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetlens/internal/domain"
)

var errDisk = errors.New("disk I/O error")

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &Repository{db: db, now: func() time.Time { return fixed }}, mock
}

func TestUpsertRecordRollsBackOnQueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT external_id FROM records").
		WithArgs("E1", "nmap-1").
		WillReturnError(errDisk)
	mock.ExpectRollback()

	err := repo.UpsertRecord(context.Background(), "E1", domain.SourceRecord{
		SourceKind: "nmap", SourceInstanceID: "nmap-1", ExternalID: "n1",
	})
	require.ErrorIs(t, err, errDisk)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEdgesCommitFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT OR IGNORE INTO edges")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errDisk)

	n, err := repo.SaveEdges(context.Background(), []domain.CorrelationEdge{{
		Left:   domain.RecordRef{SourceKind: "nmap", SourceInstanceID: "nmap-1", ExternalID: "n1"},
		Right:  domain.RecordRef{SourceKind: "crowdstrike", ExternalID: "aid"},
		Reason: domain.ReasonLogic,
	}})
	require.ErrorIs(t, err, errDisk)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveWarningsRollsBackOnInsertError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO warnings").WillReturnError(errDisk)
	mock.ExpectRollback()

	err := repo.SaveWarnings(context.Background(), []domain.Warning{{
		Kind: domain.WarningExecutionTimeout, Values: []string{"E1"},
	}})
	require.ErrorIs(t, err, errDisk)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadEntitiesQueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT id FROM entities").WillReturnError(errDisk)

	_, err := repo.LoadEntities(context.Background())
	require.ErrorIs(t, err, errDisk)
	assert.NoError(t, mock.ExpectationsWereMet())
}
