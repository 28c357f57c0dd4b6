package finrecords

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Config configures the award record lookup client.
type Config struct {
	URL                 string  `mapstructure:"url"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxCandidates       int     `mapstructure:"max_candidates"`
}

// AwardMatch represents a matched financial assistance award record.
type AwardMatch struct {
	AwardID          int64     `json:"award_id"`
	RecipientName    string    `json:"recipient_name"`
	RecipientAddress string    `json:"recipient_address"`
	RecipientCity    string    `json:"recipient_city"`
	RecipientState   string    `json:"recipient_state"`
	RecipientZip     string    `json:"recipient_zip"`
	AwardAmount      float64   `json:"award_amount"`
	DisbursedAmount  float64   `json:"disbursed_amount"`
	JobsReported     int       `json:"jobs_reported"`
	DateAwarded      time.Time `json:"date_awarded"`
	AwardStatus      string    `json:"award_status"`
	BusinessType     string    `json:"business_type"`
	NAICSCode        string    `json:"naics_code"`
	Program          string    `json:"program"`
	MatchTier        int       `json:"match_tier"`
	MatchScore       float64   `json:"match_score"`
}

// Querier abstracts database query operations for testing.
type Querier interface {
	FindAwards(ctx context.Context, name, state, city string) ([]AwardMatch, error)
	Close()
}

// pool defines the minimal database pool interface used by Client.
type pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Client queries the award record database.
type Client struct {
	pool pool
	cfg  Config
}

// Ensure Client implements Querier.
var _ Querier = (*Client)(nil)

// New creates a new award record client connected to the database.
func New(ctx context.Context, cfg Config) (*Client, error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "finrecords: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "finrecords: ping")
	}
	return &Client{pool: pool, cfg: cfg}, nil
}

// SharedPool is the connection pool surface NewFromPool borrows from the
// rest of the system. *pgxpool.Pool satisfies it.
type SharedPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// NewFromPool creates an award record client over an existing pool.
// The client does NOT own the pool, so Close() is a no-op.
// Use this when award data lives in fin_data.award_records alongside other synced tables.
func NewFromPool(p SharedPool, cfg Config) *Client {
	return &Client{pool: &sharedPool{SharedPool: p}, cfg: cfg}
}

// sharedPool adds a no-op Close so we don't close a shared connection.
type sharedPool struct {
	SharedPool
}

func (s *sharedPool) Close() {} // no-op: we don't own this pool

// Close releases the connection pool.
func (c *Client) Close() { c.pool.Close() }

// FindAwards tries 3 tiers in order, returns on first non-empty result.
func (c *Client) FindAwards(ctx context.Context, name, state, city string) ([]AwardMatch, error) {
	// Tier 1: Exact match on uppercased, trimmed name.
	upperName := strings.ToUpper(strings.TrimSpace(name))
	matches, err := c.queryTier1(ctx, upperName, state)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return matches, nil
	}

	// Tier 2: Normalized match (strip entity suffixes).
	normName := Normalize(name)
	matches, err = c.queryTier2(ctx, normName, state)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return matches, nil
	}

	// Tier 3: Trigram fuzzy match.
	matches, err = c.queryTier3(ctx, upperName, state, city)
	if err != nil {
		return nil, err
	}
	return matches, nil
}

const tier1SQL = `
SELECT awardid, recipientname, recipientaddress, recipientcity, recipientstate, recipientzip,
       awardamount, disbursedamount, jobsreported, dateawarded, awardstatus,
       businesstype, naicscode, program
FROM fin_data.award_records
WHERE recipientstate = $1 AND UPPER(TRIM(recipientname)) = $2
ORDER BY awardamount DESC`

func (c *Client) queryTier1(ctx context.Context, upperName, state string) ([]AwardMatch, error) {
	rows, err := c.pool.Query(ctx, tier1SQL, state, upperName)
	if err != nil {
		return nil, eris.Wrap(err, "finrecords: tier1 query")
	}
	defer rows.Close()

	return scanAwardMatches(rows, 1, 1.0)
}

const tier2SQL = `
SELECT awardid, recipientname, recipientaddress, recipientcity, recipientstate, recipientzip,
       awardamount, disbursedamount, jobsreported, dateawarded, awardstatus,
       businesstype, naicscode, program
FROM fin_data.award_records
WHERE recipientstate = $1
  AND UPPER(REGEXP_REPLACE(TRIM(recipientname),
      '\s*,?\s*(LLC|L\.?L\.?C\.?|INC\.?|INCORPORATED|CORP\.?|CORPORATION|CO\.?|COMPANY|LTD\.?|LIMITED|L\.?P\.?|LLP|L\.?L\.?P\.?|PLLC|P\.?L\.?L\.?C\.?|P\.?C\.?|DBA|D/B/A)\s*\.?\s*$',
      '', 'i')) = $2
ORDER BY awardamount DESC`

func (c *Client) queryTier2(ctx context.Context, normName, state string) ([]AwardMatch, error) {
	rows, err := c.pool.Query(ctx, tier2SQL, state, normName)
	if err != nil {
		return nil, eris.Wrap(err, "finrecords: tier2 query")
	}
	defer rows.Close()

	return scanAwardMatches(rows, 2, 0.8)
}

const tier3SQL = `
SELECT awardid, recipientname, recipientaddress, recipientcity, recipientstate, recipientzip,
       awardamount, disbursedamount, jobsreported, dateawarded, awardstatus,
       businesstype, naicscode, program,
       similarity(UPPER(recipientname), $2) AS sim_score
FROM fin_data.award_records
WHERE recipientstate = $1
  AND recipientname %% $2
  AND ($3::text IS NULL OR recipientcity ILIKE $3)
ORDER BY sim_score DESC
LIMIT $4`

func (c *Client) queryTier3(ctx context.Context, upperName, state, city string) ([]AwardMatch, error) {
	var cityParam *string
	if city != "" {
		cityParam = &city
	}

	rows, err := c.pool.Query(ctx, tier3SQL, state, upperName, cityParam, c.cfg.MaxCandidates)
	if err != nil {
		return nil, eris.Wrap(err, "finrecords: tier3 query")
	}
	defer rows.Close()

	return scanAwardMatchesWithScore(rows, 3)
}

// scanAwardMatches scans rows into AwardMatch structs with a fixed tier and score.
func scanAwardMatches(rows pgx.Rows, tier int, score float64) ([]AwardMatch, error) {
	var matches []AwardMatch
	for rows.Next() {
		m, err := scanAwardMatch(rows)
		if err != nil {
			return nil, err
		}
		m.MatchTier = tier
		m.MatchScore = score
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "finrecords: rows iteration")
	}
	return matches, nil
}

// scanAwardMatchesWithScore scans rows that include a sim_score column.
func scanAwardMatchesWithScore(rows pgx.Rows, tier int) ([]AwardMatch, error) {
	var matches []AwardMatch
	for rows.Next() {
		var m AwardMatch
		var simScore float64
		err := rows.Scan(
			&m.AwardID, &m.RecipientName, &m.RecipientAddress, &m.RecipientCity,
			&m.RecipientState, &m.RecipientZip, &m.AwardAmount, &m.DisbursedAmount,
			&m.JobsReported, &m.DateAwarded, &m.AwardStatus, &m.BusinessType,
			&m.NAICSCode, &m.Program, &simScore,
		)
		if err != nil {
			return nil, eris.Wrap(err, "finrecords: scan tier3 row")
		}
		m.MatchTier = tier
		m.MatchScore = simScore
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "finrecords: rows iteration")
	}
	return matches, nil
}

// scanAwardMatch scans a single row (without sim_score) into an AwardMatch.
func scanAwardMatch(rows pgx.Rows) (AwardMatch, error) {
	var m AwardMatch
	err := rows.Scan(
		&m.AwardID, &m.RecipientName, &m.RecipientAddress, &m.RecipientCity,
		&m.RecipientState, &m.RecipientZip, &m.AwardAmount, &m.DisbursedAmount,
		&m.JobsReported, &m.DateAwarded, &m.AwardStatus, &m.BusinessType,
		&m.NAICSCode, &m.Program,
	)
	if err != nil {
		return m, eris.Wrap(err, "finrecords: scan row")
	}
	return m, nil
}
