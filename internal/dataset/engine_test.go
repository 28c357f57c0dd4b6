package dataset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/insight-engine/internal/db"
	"github.com/sells-group/insight-engine/internal/fetcher"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// mockFeed implements Feed for engine tests.
type mockFeed struct {
	name      string
	shouldRun bool
	syncErr   error
	syncRows  int64
	synced    bool
	gotLast   *SyncEntry
}

func (m *mockFeed) Name() string     { return m.name }
func (m *mockFeed) Table() string    { return "fin_data." + m.name }
func (m *mockFeed) Cadence() Cadence { return Monthly }
func (m *mockFeed) ShouldRun(now time.Time, last *SyncEntry) bool {
	return m.shouldRun
}
func (m *mockFeed) Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string, last *SyncEntry) (*SyncResult, error) {
	m.synced = true
	m.gotLast = last
	if m.syncErr != nil {
		return nil, m.syncErr
	}
	return &SyncResult{RowsSynced: m.syncRows}, nil
}

var _ Feed = (*mockFeed)(nil)

func registryWith(feeds ...Feed) *Registry {
	r := NewRegistry()
	for _, f := range feeds {
		r.Register(f)
	}
	return r
}

func TestEngine_Run_Success(t *testing.T) {
	mock, syncLog := newMockSyncLog(t)
	mock.MatchExpectationsInOrder(false)

	feed := &mockFeed{name: "awards", shouldRun: true, syncRows: 100}

	mock.ExpectQuery("SELECT id, started_at, rows_synced, metadata FROM fin_data.sync_log").
		WithArgs("awards").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO fin_data.sync_log").
		WithArgs("awards").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec("UPDATE fin_data.sync_log").
		WithArgs(int64(100), pgxmock.AnyArg(), int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	engine := NewEngine(mock, nil, syncLog, registryWith(feed), t.TempDir())
	err := engine.Run(context.Background(), RunOpts{})
	assert.NoError(t, err)
	assert.True(t, feed.synced)
	assert.Nil(t, feed.gotLast)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Run_SkipNotDue(t *testing.T) {
	mock, syncLog := newMockSyncLog(t)

	feed := &mockFeed{name: "awards", shouldRun: false}

	mock.ExpectQuery("SELECT id, started_at, rows_synced, metadata FROM fin_data.sync_log").
		WithArgs("awards").
		WillReturnRows(pgxmock.NewRows([]string{"id", "started_at", "rows_synced", "metadata"}).
			AddRow(int64(4), time.Now().Add(-time.Hour), int64(500), []byte(nil)))

	engine := NewEngine(mock, nil, syncLog, registryWith(feed), t.TempDir())
	err := engine.Run(context.Background(), RunOpts{})
	assert.NoError(t, err)
	assert.False(t, feed.synced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Run_ForcePassesLastEntry(t *testing.T) {
	mock, syncLog := newMockSyncLog(t)
	mock.MatchExpectationsInOrder(false)

	feed := &mockFeed{name: "awards", shouldRun: false, syncRows: 50}

	// Force bypasses scheduling but the previous entry still reaches the
	// feed so ETag short-circuiting keeps working.
	mock.ExpectQuery("SELECT id, started_at, rows_synced, metadata FROM fin_data.sync_log").
		WithArgs("awards").
		WillReturnRows(pgxmock.NewRows([]string{"id", "started_at", "rows_synced", "metadata"}).
			AddRow(int64(4), time.Now().Add(-time.Hour), int64(500), []byte(`{"etag":"\"v9\""}`)))
	mock.ExpectQuery("INSERT INTO fin_data.sync_log").
		WithArgs("awards").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectExec("UPDATE fin_data.sync_log").
		WithArgs(int64(50), pgxmock.AnyArg(), int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	engine := NewEngine(mock, nil, syncLog, registryWith(feed), t.TempDir())
	err := engine.Run(context.Background(), RunOpts{Force: true})
	assert.NoError(t, err)
	assert.True(t, feed.synced)
	require.NotNil(t, feed.gotLast)
	assert.Equal(t, `"v9"`, feed.gotLast.Metadata["etag"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Run_SyncFailureRecorded(t *testing.T) {
	mock, syncLog := newMockSyncLog(t)
	mock.MatchExpectationsInOrder(false)

	feed := &mockFeed{name: "awards", shouldRun: true, syncErr: errors.New("download failed")}

	mock.ExpectQuery("SELECT id, started_at, rows_synced, metadata FROM fin_data.sync_log").
		WithArgs("awards").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO fin_data.sync_log").
		WithArgs("awards").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec("UPDATE fin_data.sync_log").
		WithArgs("download failed", int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	engine := NewEngine(mock, nil, syncLog, registryWith(feed), t.TempDir())
	err := engine.Run(context.Background(), RunOpts{})
	assert.NoError(t, err) // engine continues past feed failures
	assert.True(t, feed.synced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Run_ContextCancelled(t *testing.T) {
	mock, syncLog := newMockSyncLog(t)

	feed := &mockFeed{name: "awards", shouldRun: true}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(mock, nil, syncLog, registryWith(feed), t.TempDir())
	err := engine.Run(ctx, RunOpts{Force: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, feed.synced)
}

func TestEngine_Run_UnknownFeed(t *testing.T) {
	mock, syncLog := newMockSyncLog(t)

	engine := NewEngine(mock, nil, syncLog, NewRegistry(), t.TempDir())
	err := engine.Run(context.Background(), RunOpts{Feeds: []string{"nonexistent"}})
	assert.Error(t, err)
}

func TestEngine_Run_NoFeeds(t *testing.T) {
	mock, syncLog := newMockSyncLog(t)

	engine := NewEngine(mock, nil, syncLog, NewRegistry(), t.TempDir())
	err := engine.Run(context.Background(), RunOpts{})
	assert.NoError(t, err)
}
