package collector

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func event(typ domain.EventType, step string) domain.AnalyticsEvent {
	return domain.AnalyticsEvent{Type: typ, TourID: "onboarding", StepID: step, SessionID: "s1", Timestamp: at}
}

func TestStore_MigratePostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("BIGSERIAL PRIMARY KEY").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_narrate_events_tour").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_narrate_events_session").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewStore(db, Postgres).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Insert(t *testing.T) {
	tests := []struct {
		name    string
		events  []domain.AnalyticsEvent
		setup   func(mock sqlmock.Sqlmock)
		wantErr string
	}{
		{
			name:   "commits every event",
			events: []domain.AnalyticsEvent{event(domain.EventStart, ""), event(domain.EventStepView, "welcome")},
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO narrate_events(type, tour_id, step_id, session_id, metadata, ts_ms) VALUES($1,$2,$3,$4,$5,$6)"))
				prep.ExpectExec().WithArgs("start", "onboarding", "", "s1", "{}", at.UnixMilli()).WillReturnResult(sqlmock.NewResult(1, 1))
				prep.ExpectExec().WithArgs("step_view", "onboarding", "welcome", "s1", "{}", at.UnixMilli()).WillReturnResult(sqlmock.NewResult(2, 1))
				mock.ExpectCommit()
			},
		},
		{
			name:   "rolls back an invalid event",
			events: []domain.AnalyticsEvent{{Type: domain.EventStart, Timestamp: at}},
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectPrepare("INSERT INTO narrate_events")
				mock.ExpectRollback()
			},
			wantErr: "sessionId cannot be empty",
		},
		{
			name:   "rolls back on exec failure",
			events: []domain.AnalyticsEvent{event(domain.EventExit, "save")},
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectPrepare("INSERT INTO narrate_events").ExpectExec().WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			wantErr: "disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.setup(mock)

			err = NewStore(db, Postgres).Insert(context.Background(), tt.events...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_Counts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"tour_id", "type", "count"}).
		AddRow("onboarding", "complete", 2).
		AddRow("onboarding", "start", 5)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tour_id = $1")).WithArgs("onboarding").WillReturnRows(rows)

	counts, err := NewStore(db, Postgres).Counts(context.Background(), "onboarding")
	require.NoError(t, err)
	assert.Equal(t, []Count{
		{TourID: "onboarding", Type: domain.EventComplete, Count: 2},
		{TourID: "onboarding", Type: domain.EventStart, Count: 5},
	}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SQLite(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "sqlite", filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer s.Close()

	withMeta := event(domain.EventVisionSuccess, "save")
	withMeta.Metadata = map[string]any{"confidence": 0.9}
	require.NoError(t, s.Emit(ctx, event(domain.EventStart, "")))
	require.NoError(t, s.Insert(ctx, withMeta, event(domain.EventStepView, "save")))

	counts, err := s.Counts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, counts, 3)

	events, err := s.Sessions(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventStart, events[0].Type)
	assert.Equal(t, 0.9, events[1].Metadata["confidence"])
	assert.True(t, events[2].Timestamp.Equal(at))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	require.Error(t, err)
}
