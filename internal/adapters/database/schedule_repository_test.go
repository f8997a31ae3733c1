package database

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"mailer/internal/domain"
	"mailer/internal/testutil"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
)

type RepositoryIntegrationTestSuite struct {
	suite.Suite
	container testcontainers.Container
	pool      *pgxpool.Pool
	db        *sql.DB
	schedules *PostgresScheduleRepository
	records   *PostgresRecordRepository
	ctx       context.Context
	nextJobID int64
}

func (suite *RepositoryIntegrationTestSuite) SetupSuite() {
	suite.ctx = context.Background()
	var connStr string
	suite.container, suite.pool, connStr = testutil.SetupTestDatabase(suite.T(), suite.ctx)

	db, err := NewPostgresConnection(suite.ctx, connStr)
	require.NoError(suite.T(), err)
	suite.db = db

	suite.schedules = NewPostgresScheduleRepository(suite.pool).(*PostgresScheduleRepository)
	suite.records = NewPostgresRecordRepository(suite.db).(*PostgresRecordRepository)
}

func (suite *RepositoryIntegrationTestSuite) TearDownSuite() {
	if suite.db != nil {
		suite.db.Close()
	}
	testutil.CleanupTestDatabase(suite.T(), suite.ctx, suite.container, suite.pool)
}

func (suite *RepositoryIntegrationTestSuite) SetupTest() {
	testutil.TruncateTables(suite.T(), suite.ctx, suite.pool)
}

func (suite *RepositoryIntegrationTestSuite) createTestSchedule(total uint64) *domain.ScheduleRecord {
	suite.nextJobID++
	record := &domain.ScheduleRecord{
		JobID:    suite.nextJobID,
		Name:     fmt.Sprintf("newsletter-%d", suite.nextJobID),
		Type:     "immediate",
		SendMode: domain.SendModeSample,
		Total:    total,
		Status:   domain.JobStatusLoading,
	}
	require.NoError(suite.T(), suite.schedules.CreateSchedule(suite.ctx, record))
	return record
}

func (suite *RepositoryIntegrationTestSuite) TestFindByJobID() {
	created := suite.createTestSchedule(10)

	record, err := suite.schedules.FindByJobID(suite.ctx, created.JobID)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), created.JobID, record.JobID)
	assert.Equal(suite.T(), created.Name, record.Name)
	assert.Equal(suite.T(), domain.SendModeSample, record.SendMode)
	assert.Equal(suite.T(), uint64(10), record.Total)
	assert.Equal(suite.T(), domain.JobStatusLoading, record.Status)
	assert.Nil(suite.T(), record.SendTime)
	assert.NotZero(suite.T(), record.CreatedAt)
}

func (suite *RepositoryIntegrationTestSuite) TestFindByJobIDNotFound() {
	record, err := suite.schedules.FindByJobID(suite.ctx, 9999)

	assert.ErrorIs(suite.T(), err, domain.ErrScheduleNotFound)
	assert.Nil(suite.T(), record)
}

func (suite *RepositoryIntegrationTestSuite) TestUpdateCounters() {
	created := suite.createTestSchedule(10)

	err := suite.schedules.UpdateCounters(suite.ctx, created.JobID, domain.Counters{Success: 3, Failure: 1})
	require.NoError(suite.T(), err)

	// replaying the same cumulative value is harmless
	err = suite.schedules.UpdateCounters(suite.ctx, created.JobID, domain.Counters{Success: 3, Failure: 1})
	require.NoError(suite.T(), err)

	record, err := suite.schedules.FindByJobID(suite.ctx, created.JobID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), domain.Counters{Success: 3, Failure: 1}, record.Counters())
	assert.Equal(suite.T(), domain.JobStatusLoading, record.Status)
	assert.Equal(suite.T(), created.Name, record.Name)
}

func (suite *RepositoryIntegrationTestSuite) TestUpdateCountersNotFound() {
	err := suite.schedules.UpdateCounters(suite.ctx, 9999, domain.Counters{Success: 1})

	assert.ErrorIs(suite.T(), err, domain.ErrScheduleNotFound)
}

func (suite *RepositoryIntegrationTestSuite) TestUpdateStatus() {
	created := suite.createTestSchedule(2)

	err := suite.schedules.UpdateStatus(suite.ctx, created.JobID, domain.JobStatusFulfilled)
	require.NoError(suite.T(), err)

	record, err := suite.schedules.FindByJobID(suite.ctx, created.JobID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), domain.JobStatusFulfilled, record.Status)
	assert.True(suite.T(), record.Status.Terminal())
}

func (suite *RepositoryIntegrationTestSuite) TestCreateAndListRecords() {
	created := suite.createTestSchedule(2)
	appName := "newsletter-app"
	sampleID := int64(7)
	sampleName := "welcome"
	reason := "mailbox full"

	fulfilled := &domain.SendRecord{
		ID:         uuid.NewString(),
		JobID:      created.JobID,
		JobName:    created.Name,
		AppID:      42,
		AppName:    &appName,
		Recipient:  "a@example.com",
		SendMode:   domain.SendModeSample,
		Outcome:    domain.OutcomeFulfilled,
		SampleID:   &sampleID,
		SampleName: &sampleName,
		CreatedAt:  time.Now().Add(-time.Second),
	}
	// lookups missed: denormalized fields stay NULL
	rejected := &domain.SendRecord{
		ID:        uuid.NewString(),
		JobID:     created.JobID,
		JobName:   created.Name,
		AppID:     42,
		Recipient: "b@example.com",
		SendMode:  domain.SendModeSample,
		Outcome:   domain.OutcomeRejected,
		Reason:    &reason,
		CreatedAt: time.Now(),
	}

	require.NoError(suite.T(), suite.records.CreateRecord(suite.ctx, fulfilled))
	require.NoError(suite.T(), suite.records.CreateRecord(suite.ctx, rejected))

	records, err := suite.records.ListRecords(suite.ctx, created.JobID, 10)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), records, 2)

	// newest first
	assert.Equal(suite.T(), rejected.ID, records[0].ID)
	assert.Equal(suite.T(), domain.OutcomeRejected, records[0].Outcome)
	assert.Equal(suite.T(), "mailbox full", *records[0].Reason)
	assert.Nil(suite.T(), records[0].AppName)
	assert.Nil(suite.T(), records[0].UserID)
	assert.Nil(suite.T(), records[0].Nickname)

	assert.Equal(suite.T(), fulfilled.ID, records[1].ID)
	assert.Equal(suite.T(), domain.OutcomeFulfilled, records[1].Outcome)
	assert.Equal(suite.T(), "newsletter-app", *records[1].AppName)
	assert.Equal(suite.T(), int64(7), *records[1].SampleID)
	assert.Nil(suite.T(), records[1].Reason)
}

func (suite *RepositoryIntegrationTestSuite) TestCreateRecordRejectsUnknownOutcome() {
	record := &domain.SendRecord{
		ID:        uuid.NewString(),
		JobID:     1,
		JobName:   "broken",
		AppID:     1,
		Recipient: "c@example.com",
		SendMode:  domain.SendModeSample,
		Outcome:   domain.Outcome("pending"),
		CreatedAt: time.Now(),
	}

	err := suite.records.CreateRecord(suite.ctx, record)

	assert.Error(suite.T(), err)
}

func TestRepositoryIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(RepositoryIntegrationTestSuite))
}
