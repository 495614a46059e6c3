// Package store persists finished episodes, their offers and audit events
// in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
	"github.com/danielpatrickdp/dealdialect/internal/engine"
	"github.com/danielpatrickdp/dealdialect/internal/metrics"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	id             TEXT PRIMARY KEY,
	created_at     TEXT NOT NULL,
	buyer_profile  TEXT NOT NULL DEFAULT '',
	seller_profile TEXT NOT NULL DEFAULT '',
	seed           INTEGER NOT NULL DEFAULT 0,
	msrp           REAL NOT NULL,
	buyer_value    REAL NOT NULL,
	seller_cost    REAL NOT NULL,
	time_limit     INTEGER NOT NULL,
	item_json      TEXT NOT NULL,
	outcome        TEXT NOT NULL,
	deal_price     REAL,
	rounds         INTEGER NOT NULL,
	buyer_trust    REAL NOT NULL,
	seller_trust   REAL NOT NULL,
	metrics_json   TEXT
);

CREATE TABLE IF NOT EXISTS offers (
	episode_id     TEXT NOT NULL,
	seq            INTEGER NOT NULL,
	role           TEXT NOT NULL,
	price          REAL NOT NULL,
	utterance      TEXT NOT NULL,
	intent         TEXT NOT NULL,
	is_bluff       INTEGER NOT NULL DEFAULT 0,
	bluff_strength REAL NOT NULL DEFAULT 0,
	trust_after    REAL NOT NULL,
	round          INTEGER NOT NULL,
	created_at     TEXT NOT NULL,
	PRIMARY KEY (episode_id, seq),
	FOREIGN KEY (episode_id) REFERENCES episodes(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS episode_events (
	id           TEXT PRIMARY KEY,
	episode_id   TEXT NOT NULL,
	kind         TEXT NOT NULL,
	role         TEXT,
	round        INTEGER NOT NULL,
	price        REAL NOT NULL,
	intent       TEXT,
	confidence   REAL NOT NULL,
	payload_json TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_episode_events_episode ON episode_events(episode_id);
`

// #endregion schema

// #region store-struct
// Store manages episode history in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations. Use ":memory:" for
// a throwaway store.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// each pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if _, err := db.Exec(profileOutcomesSchema); err != nil {
		return nil, fmt.Errorf("migrate profile outcomes: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #region new-record
// NewEpisodeRecord captures a finished engine run. The ID is left empty
// and assigned on save.
func NewEpisodeRecord(ctx *deal.DealContext, v deal.StateView, buyerProfile, sellerProfile string, seed uint64) (EpisodeRecord, error) {
	m, err := json.Marshal(metrics.Compute(ctx, v))
	if err != nil {
		return EpisodeRecord{}, fmt.Errorf("marshal metrics: %w", err)
	}
	rec := EpisodeRecord{
		BuyerProfile:  buyerProfile,
		SellerProfile: sellerProfile,
		Seed:          seed,
		MSRP:          ctx.MSRP(),
		BuyerValue:    ctx.BuyerValue(),
		SellerCost:    ctx.SellerCost(),
		TimeLimit:     ctx.TimeLimit(),
		Item:          ctx.Item(),
		Outcome:       string(engine.OutcomeOf(v)),
		Rounds:        v.CurrentRound(),
		BuyerTrust:    v.Trust(deal.Buyer),
		SellerTrust:   v.Trust(deal.Seller),
		MetricsJSON:   string(m),
		Offers:        v.History(),
	}
	if p, ok := v.DealPrice(); ok && v.HasAgreement() {
		rec.DealPrice = &p
	}
	return rec, nil
}

// #endregion new-record

// #region save-episode
// SaveEpisode inserts the episode, its offers and a profile outcome per
// side in one transaction, returning the episode ID.
func (s *Store) SaveEpisode(rec EpisodeRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	itemJSON, err := json.Marshal(rec.Item)
	if err != nil {
		return "", fmt.Errorf("marshal item: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var pricePtr interface{}
	if rec.DealPrice != nil {
		pricePtr = *rec.DealPrice
	}
	var metricsPtr interface{}
	if rec.MetricsJSON != "" {
		metricsPtr = rec.MetricsJSON
	}

	_, err = tx.Exec(
		`INSERT INTO episodes (id, created_at, buyer_profile, seller_profile, seed, msrp, buyer_value, seller_cost,
		 time_limit, item_json, outcome, deal_price, rounds, buyer_trust, seller_trust, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.Format(time.RFC3339Nano), rec.BuyerProfile, rec.SellerProfile, int64(rec.Seed),
		rec.MSRP, rec.BuyerValue, rec.SellerCost, rec.TimeLimit, string(itemJSON), rec.Outcome, pricePtr,
		rec.Rounds, rec.BuyerTrust, rec.SellerTrust, metricsPtr,
	)
	if err != nil {
		return "", fmt.Errorf("insert episode: %w", err)
	}

	for i, o := range rec.Offers {
		ts := o.Timestamp
		if ts.IsZero() {
			ts = rec.CreatedAt
		}
		_, err = tx.Exec(
			`INSERT INTO offers (episode_id, seq, role, price, utterance, intent, is_bluff, bluff_strength, trust_after, round, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, o.Role.String(), o.Price, o.Utterance, string(o.Intent), boolInt(o.IsBluff),
			o.BluffStrength, o.TrustAfter, o.RoundNumber, ts.Format(time.RFC3339Nano),
		)
		if err != nil {
			return "", fmt.Errorf("insert offer %d: %w", i, err)
		}
	}

	for _, po := range profileOutcomes(rec) {
		if err := insertProfileOutcome(tx, po); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return rec.ID, nil
}

// #endregion save-episode

// #region get-episode
const episodeColumns = `id, created_at, buyer_profile, seller_profile, seed, msrp, buyer_value, seller_cost,
	time_limit, item_json, outcome, deal_price, rounds, buyer_trust, seller_trust, metrics_json`

type scanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row scanner) (EpisodeRecord, error) {
	var rec EpisodeRecord
	var createdStr, itemJSON string
	var seed int64
	var price sql.NullFloat64
	var metricsJSON sql.NullString

	err := row.Scan(&rec.ID, &createdStr, &rec.BuyerProfile, &rec.SellerProfile, &seed, &rec.MSRP, &rec.BuyerValue,
		&rec.SellerCost, &rec.TimeLimit, &itemJSON, &rec.Outcome, &price, &rec.Rounds, &rec.BuyerTrust,
		&rec.SellerTrust, &metricsJSON)
	if err != nil {
		return EpisodeRecord{}, err
	}
	rec.Seed = uint64(seed)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	if err := json.Unmarshal([]byte(itemJSON), &rec.Item); err != nil {
		return EpisodeRecord{}, fmt.Errorf("unmarshal item: %w", err)
	}
	if price.Valid {
		p := price.Float64
		rec.DealPrice = &p
	}
	if metricsJSON.Valid {
		rec.MetricsJSON = metricsJSON.String
	}
	return rec, nil
}

// GetEpisode retrieves an episode and its offers by ID.
func (s *Store) GetEpisode(id string) (EpisodeRecord, error) {
	rec, err := scanEpisode(s.db.QueryRow(`SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return EpisodeRecord{}, fmt.Errorf("get episode %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return EpisodeRecord{}, fmt.Errorf("get episode %s: %w", id, err)
	}

	rows, err := s.db.Query(
		`SELECT role, price, utterance, intent, is_bluff, bluff_strength, trust_after, round, created_at
		 FROM offers WHERE episode_id = ? ORDER BY seq`, id)
	if err != nil {
		return EpisodeRecord{}, fmt.Errorf("get offers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o deal.Offer
		var role, intent, createdStr string
		var bluff int
		if err := rows.Scan(&role, &o.Price, &o.Utterance, &intent, &bluff, &o.BluffStrength, &o.TrustAfter, &o.RoundNumber, &createdStr); err != nil {
			return EpisodeRecord{}, fmt.Errorf("scan offer: %w", err)
		}
		if o.Role, err = deal.ParseRole(role); err != nil {
			return EpisodeRecord{}, fmt.Errorf("offer role: %w", err)
		}
		if o.Intent, err = deal.ParseIntent(intent); err != nil {
			return EpisodeRecord{}, fmt.Errorf("offer intent: %w", err)
		}
		o.IsBluff = bluff != 0
		o.Timestamp, _ = time.Parse(time.RFC3339Nano, createdStr)
		rec.Offers = append(rec.Offers, o)
	}
	return rec, rows.Err()
}

// #endregion get-episode

// #region list-episodes
// ListEpisodes returns the most recent episodes without their offers.
func (s *Store) ListEpisodes(limit int) ([]EpisodeRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+episodeColumns+` FROM episodes ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var records []EpisodeRecord
	for rows.Next() {
		rec, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-episodes

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
