package dataset

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/insight-engine/internal/config"
	"github.com/sells-group/insight-engine/internal/fetcher"
)

const awardsCSV = `AwardID,RecipientName,RecipientAddress,RecipientCity,RecipientState,RecipientZip,AwardAmount,DisbursedAmount,JobsReported,DateAwarded,AwardStatus,BusinessType,NAICSCode,Program
101,Acme Corp,100 Main St,Denver,CO,80202,"$250,000.00",250000,12,04/15/2021,Paid in Full,Corporation,541511,First Draw
102,Globex LLC,200 Oak Ave,Austin,TX,78701,98000,50000,5,2021-02-01,Active,LLC,332710,Second Draw
,Missing ID,,,,,,,,,,,,
`

func newAwardsFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second, MaxRetries: 1})
}

// expectAwardsUpsert sets up the temp-table COPY + INSERT flow a refresh
// uses for one batch.
func expectAwardsUpsert(mock pgxmock.PgxPoolIface, rows int64) {
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_fin_data_award_records"}, awardColumns).
		WillReturnResult(rows)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", rows))
	mock.ExpectCommit()
}

// expectAwardsCopy sets up the plain COPY a first load uses.
func expectAwardsCopy(mock pgxmock.PgxPoolIface, rows int64) {
	mock.ExpectCopyFrom(pgx.Identifier{"fin_data", "award_records"}, awardColumns).
		WillReturnResult(rows)
}

func TestAwards_ShouldRun(t *testing.T) {
	d := &Awards{}
	now := time.Date(2025, time.August, 25, 0, 0, 0, 0, time.UTC)

	assert.True(t, d.ShouldRun(now, nil))
	assert.False(t, d.ShouldRun(now, &SyncEntry{StartedAt: now.Add(-10 * 24 * time.Hour)}))
	assert.True(t, d.ShouldRun(now, &SyncEntry{StartedAt: now.Add(-30 * 24 * time.Hour)}))
}

func TestNewAwards_FeedURLWins(t *testing.T) {
	d := NewAwards(config.DatasetConfig{
		FeedURL: "https://feeds.example.gov/awards.csv",
		FTPHost: "ftp.example.gov",
		FTPPath: "/pub/awards.zip",
	})
	assert.Equal(t, "https://feeds.example.gov/awards.csv", d.feedURL)
}

func TestNewAwards_AssemblesFTPURL(t *testing.T) {
	d := NewAwards(config.DatasetConfig{
		FTPHost: "ftp.example.gov",
		FTPPath: "/pub/awards.zip",
	})
	assert.Equal(t, "ftp://ftp.example.gov/pub/awards.zip", d.feedURL)
}

func TestAwards_Sync_NoURL(t *testing.T) {
	d := &Awards{}
	_, err := d.Sync(context.Background(), nil, newAwardsFetcher(), t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no feed url configured")
}

func TestAwards_Sync_UnsupportedScheme(t *testing.T) {
	d := &Awards{feedURL: "gopher://feeds.example.gov/awards.csv"}
	_, err := d.Sync(context.Background(), nil, newAwardsFetcher(), t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported feed scheme")
}

func TestAwards_Sync_CSVOverHTTP_Refresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(awardsCSV))
	}))
	defer srv.Close()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	expectAwardsUpsert(mock, 2)

	d := &Awards{feedURL: srv.URL + "/awards.csv"}
	// A prior sync with a stale ETag forces the upsert path.
	last := &SyncEntry{
		StartedAt: time.Now().Add(-40 * 24 * time.Hour),
		Metadata:  map[string]any{"etag": `"v0"`},
	}
	result, err := d.Sync(context.Background(), mock, newAwardsFetcher(), t.TempDir(), last)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.RowsSynced)
	assert.Equal(t, `"v1"`, result.Metadata["etag"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAwards_Sync_UnchangedETag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte(awardsCSV))
	}))
	defer srv.Close()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	d := &Awards{feedURL: srv.URL + "/awards.csv"}
	last := &SyncEntry{
		StartedAt: time.Now().Add(-40 * 24 * time.Hour),
		Metadata:  map[string]any{"etag": `"v1"`},
	}

	result, err := d.Sync(context.Background(), mock, newAwardsFetcher(), t.TempDir(), last)
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.RowsSynced)
	assert.Equal(t, `"v1"`, result.Metadata["etag"]) // carried forward for the next run
	assert.NoError(t, mock.ExpectationsWereMet())    // no DB traffic
}

func TestAwards_Sync_ZIPWrappedCSV(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "awards.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	entry, err := w.Create("awards.csv")
	require.NoError(t, err)
	_, err = entry.Write([]byte(awardsCSV))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	archiveBytes, err := os.ReadFile(archive)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archiveBytes)
	}))
	defer srv.Close()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	// First ever sync, so the load goes through plain COPY.
	expectAwardsCopy(mock, 2)

	d := &Awards{feedURL: srv.URL + "/awards.zip"}
	result, err := d.Sync(context.Background(), mock, newAwardsFetcher(), t.TempDir(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.RowsSynced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAwards_LoadFile_XLSX(t *testing.T) {
	xf := xlsx.NewFile()
	sheet, err := xf.AddSheet("Awards")
	require.NoError(t, err)
	for _, row := range [][]string{
		{"AwardID", "RecipientName", "RecipientState", "AwardAmount"},
		{"201", "Initech Inc", "CA", "75000"},
		{"0", "Bad ID", "NV", "100"},
		{"202", "Hooli", "WA", "1200000"},
	} {
		r := sheet.AddRow()
		for _, val := range row {
			r.AddCell().SetString(val)
		}
	}
	dataPath := filepath.Join(t.TempDir(), "awards.xlsx")
	require.NoError(t, xf.Save(dataPath))

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	expectAwardsCopy(mock, 2)

	d := &Awards{}
	rows, err := d.loadFile(context.Background(), mock, dataPath, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAwardRow(t *testing.T) {
	colIdx := mapColumns([]string{
		"AwardID", "RecipientName", "RecipientCity", "RecipientState",
		"AwardAmount", "JobsReported", "DateAwarded",
	})

	row, ok := awardRow([]string{"101", `"Acme Corp"`, "Denver", "CO", "$250,000.00", "12", "04/15/2021"}, colIdx)
	require.True(t, ok)
	assert.Equal(t, int64(101), row[0])
	assert.Equal(t, "Acme Corp", row[1])
	assert.Equal(t, "Denver", row[3])
	assert.Equal(t, "CO", row[4])
	assert.Equal(t, float64(250000), row[6])
	assert.Equal(t, 12, row[8])
	date, ok := row[9].(*time.Time)
	require.True(t, ok)
	assert.Equal(t, 2021, date.Year())
}

func TestAwardRow_RejectsMissingID(t *testing.T) {
	colIdx := mapColumns([]string{"AwardID", "RecipientName"})

	_, ok := awardRow([]string{"", "No ID Corp"}, colIdx)
	assert.False(t, ok)

	_, ok = awardRow([]string{"not-a-number", "Bad ID Corp"}, colIdx)
	assert.False(t, ok)
}

func TestPriorETag(t *testing.T) {
	assert.Equal(t, "", priorETag(nil))
	assert.Equal(t, "", priorETag(&SyncEntry{}))
	assert.Equal(t, `"v2"`, priorETag(&SyncEntry{Metadata: map[string]any{"etag": `"v2"`}}))
	assert.Equal(t, "", priorETag(&SyncEntry{Metadata: map[string]any{"etag": 7}}))
}
