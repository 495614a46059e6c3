package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

// #region log-event
// LogEvent writes an entry to the episode_events table and returns its ID.
func LogEvent(db *sql.DB, entry EventEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO episode_events (id, episode_id, kind, role, round, price, intent, confidence, payload_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.EpisodeID,
		entry.Kind,
		nullIfEmpty(entry.Role),
		entry.Round,
		entry.Price,
		nullIfEmpty(entry.Intent),
		entry.Confidence,
		nullIfEmpty(entry.PayloadJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("log event: %w", err)
	}
	return entry.ID, nil
}

// ListEvents returns an episode's events in insertion order.
func ListEvents(db *sql.DB, episodeID string) ([]EventEntry, error) {
	rows, err := db.Query(
		`SELECT id, episode_id, kind, COALESCE(role, ''), round, price, COALESCE(intent, ''), confidence, COALESCE(payload_json, ''), created_at
		 FROM episode_events WHERE episode_id = ? ORDER BY rowid`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventEntry
	for rows.Next() {
		var e EventEntry
		var created string
		if err := rows.Scan(&e.ID, &e.EpisodeID, &e.Kind, &e.Role, &e.Round, &e.Price, &e.Intent, &e.Confidence, &e.PayloadJSON, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion log-event

// #region recorder
// EventRecorder persists engine events for one episode. It satisfies the
// engine's Listener interface. Write failures are logged and the first one
// is kept for Err; a failing audit log never interrupts a negotiation.
type EventRecorder struct {
	db        *sql.DB
	episodeID string
	log       zerolog.Logger

	mu  sync.Mutex
	err error
}

// NewEventRecorder returns a recorder writing under episodeID.
func NewEventRecorder(db *sql.DB, episodeID string, log zerolog.Logger) *EventRecorder {
	return &EventRecorder{
		db:        db,
		episodeID: episodeID,
		log:       log.With().Str("episode", episodeID).Logger(),
	}
}

// OnOfferMade records an appended move.
func (r *EventRecorder) OnOfferMade(o deal.Offer, v deal.StateView) {
	r.write(KindOffer, o, 0, v)
}

// OnBluffDetected records a detection together with its confidence.
func (r *EventRecorder) OnBluffDetected(o deal.Offer, confidence float64, v deal.StateView) {
	r.write(KindBluffDetected, o, confidence, v)
}

// RecordOutcome writes a closing event with the agreed price, if any.
func (r *EventRecorder) RecordOutcome(v deal.StateView) {
	price, _ := v.DealPrice()
	outcome := "NO_DEAL"
	if v.HasAgreement() {
		outcome = "AGREEMENT"
	}
	r.save(EventEntry{
		EpisodeID: r.episodeID,
		Kind:      KindOutcome,
		Round:     v.CurrentRound(),
		Price:     price,
		Intent:    outcome,
	})
}

// Err returns the first write failure, if any.
func (r *EventRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *EventRecorder) write(kind string, o deal.Offer, confidence float64, v deal.StateView) {
	payload, err := json.Marshal(OfferPayload{
		Utterance:     o.Utterance,
		IsBluff:       o.IsBluff,
		BluffStrength: o.BluffStrength,
		BuyerTrust:    v.Trust(deal.Buyer),
		SellerTrust:   v.Trust(deal.Seller),
	})
	if err != nil {
		r.fail(fmt.Errorf("marshal payload: %w", err))
		return
	}
	r.save(EventEntry{
		EpisodeID:   r.episodeID,
		Kind:        kind,
		Role:        o.Role.String(),
		Round:       o.RoundNumber,
		Price:       o.Price,
		Intent:      string(o.Intent),
		Confidence:  confidence,
		PayloadJSON: string(payload),
		CreatedAt:   o.Timestamp,
	})
}

func (r *EventRecorder) save(e EventEntry) {
	if _, err := LogEvent(r.db, e); err != nil {
		r.fail(err)
	}
}

func (r *EventRecorder) fail(err error) {
	r.log.Warn().Err(err).Msg("event not recorded")
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// #endregion recorder

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
