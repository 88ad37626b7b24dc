package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
	"github.com/aws-educate-tw/tpet-pipeline/internal/service/run"
)

func runRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"run_id", "run_type", "recipient_source", "subject", "display_name",
		"reply_to", "sender_local_part", "cc", "bcc",
		"template_file_id", "spreadsheet_file_id", "attachment_file_ids",
		"template_file", "spreadsheet_file", "attachment_files", "recipients",
		"expected_email_send_count", "success_email_count",
		"is_generate_certificate", "sender_id", "sender",
		"created_at", "created_year", "created_year_month", "created_year_month_day",
	})
}

func TestRunRepoGet(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM runs WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(runRows().AddRow(
			"run-1", "EMAIL", "SPREADSHEET", "Welcome", "AWS Educate",
			"reply@x.com", "cloudambassador", `["c@x.com"]`, nil,
			"tpl-1", "sheet-1", `["att-1"]`,
			`{"file_id":"tpl-1","s3_object_key":"templates/t.html"}`, nil, nil, nil,
			5, 3, false, "u-1", `{"user_id":"u-1","username":"ann","email":"ann@x.com"}`,
			created, "2025", "2025-06", "2025-06-01",
		))

	repo := NewRunRepo(db)
	got, err := repo.Get(context.Background(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, domain.RunTypeEmail, got.RunType)
	assert.Equal(t, []string{"c@x.com"}, got.CC)
	assert.Equal(t, 5, got.ExpectedEmailSendCount)
	assert.Equal(t, 3, got.SuccessEmailCount)
	assert.Equal(t, 2, got.FailedEmailCount())
	require.NotNil(t, got.TemplateFile)
	assert.Equal(t, "templates/t.html", got.TemplateFile.S3ObjectKey)
	require.NotNil(t, got.Sender)
	assert.Equal(t, "ann", got.Sender.Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepoGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM runs WHERE run_id = \$1`).
		WithArgs("missing").
		WillReturnRows(runRows())

	repo := NewRunRepo(db)
	_, err = repo.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, run.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepoIncrementSuccessCount(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE runs SET success_email_count = success_email_count \+ 1`).
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRunRepo(db)
	require.NoError(t, repo.IncrementSuccessCount(context.Background(), "run-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepoIncrementSuccessCountMissingRun(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE runs SET success_email_count = success_email_count \+ 1`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRunRepo(db)
	err = repo.IncrementSuccessCount(context.Background(), "ghost")
	assert.True(t, errors.Is(err, run.ErrNotFound))
}

func TestRunRepoIncrementExpectedCount(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE runs SET expected_email_send_count = expected_email_send_count \+ \$2`).
		WithArgs("wh-1", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRunRepo(db)
	require.NoError(t, repo.IncrementExpectedCount(context.Background(), "wh-1", 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepoUpsertPreservesCounters(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	// The conflict clause must not touch created_at, expected or success
	// counters; a redelivered upsert only refreshes descriptive fields.
	mock.ExpectExec(`INSERT INTO runs .+ ON CONFLICT \(run_id\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := &domain.Run{
		RunID:                  "run-1",
		RunType:                domain.RunTypeEmail,
		RecipientSource:        domain.RecipientSourceDirect,
		Subject:                "Welcome",
		DisplayName:            "AWS Educate",
		TemplateFileID:         "tpl-1",
		ExpectedEmailSendCount: 1,
	}
	r.StampCreated(time.Now())

	repo := NewRunRepo(db)
	require.NoError(t, repo.Upsert(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepoList(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM runs`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT .+ FROM runs .+ ORDER BY created_at DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(10, 0).
		WillReturnRows(runRows().AddRow(
			"run-1", "EMAIL", "DIRECT", "Hi", "AWS Educate",
			"", "", nil, nil, "tpl-1", "", nil, nil, nil, nil, nil,
			1, 1, false, "", nil,
			time.Now(), "2025", "2025-06", "2025-06-01",
		))

	repo := NewRunRepo(db)
	runs, total, err := repo.List(context.Background(), run.ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
}
