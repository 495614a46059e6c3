package logging

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE episode_events (
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
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// #endregion helpers

// #region log-event-tests
func TestLogEvent_Success(t *testing.T) {
	db := setupDB(t)

	id, err := LogEvent(db, EventEntry{
		EpisodeID: "ep1",
		Kind:      KindOffer,
		Role:      "BUYER",
		Round:     2,
		Price:     750,
		Intent:    "COUNTER",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}

	events, err := ListEvents(db, "ep1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.ID != id || e.Price != 750 || e.Round != 2 || e.Intent != "COUNTER" {
		t.Errorf("unexpected event %+v", e)
	}
	if !e.CreatedAt.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("created_at = %v", e.CreatedAt)
	}
}

func TestLogEvent_NullableFields(t *testing.T) {
	db := setupDB(t)
	if _, err := LogEvent(db, EventEntry{EpisodeID: "ep1", Kind: KindOutcome}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var role sql.NullString
	db.QueryRow("SELECT role FROM episode_events").Scan(&role)
	if role.Valid {
		t.Errorf("expected NULL role, got %q", role.String)
	}
}

func TestLogEvent_MissingTable(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if _, err := LogEvent(db, EventEntry{EpisodeID: "ep1", Kind: KindOffer}); err == nil {
		t.Fatal("expected error without table")
	}
}

// #endregion log-event-tests

// #region recorder-tests
func TestEventRecorder(t *testing.T) {
	db := setupDB(t)
	rec := NewEventRecorder(db, "ep7", zerolog.Nop())

	s := deal.NewDialogueState()
	offer := s.Append(deal.NewOffer(deal.Seller, 900, "How about $900?", deal.IntentCounter))
	rec.OnOfferMade(offer, s)
	bluff := s.Append(deal.NewBluff(deal.Seller, 1100, "This is my limit.", 0.6))
	s.ApplyBluffPenalty(deal.Seller, 0.15)
	rec.OnBluffDetected(bluff, 0.8, s)
	s.SetDealPrice(850)
	rec.RecordOutcome(s)

	if err := rec.Err(); err != nil {
		t.Fatalf("recorder error: %v", err)
	}
	events, err := ListEvents(db, "ep7")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	kinds := []string{events[0].Kind, events[1].Kind, events[2].Kind}
	if strings.Join(kinds, ",") != "offer,bluff_detected,outcome" {
		t.Errorf("kinds = %v", kinds)
	}
	if events[1].Confidence != 0.8 || events[1].Price != 1100 {
		t.Errorf("detection event = %+v", events[1])
	}
	if events[2].Intent != "AGREEMENT" || events[2].Price != 850 {
		t.Errorf("outcome event = %+v", events[2])
	}

	var p OfferPayload
	if err := json.Unmarshal([]byte(events[1].PayloadJSON), &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if !p.IsBluff || p.BluffStrength != 0.6 {
		t.Errorf("payload = %+v", p)
	}
	if p.BuyerTrust >= 1.0 {
		t.Errorf("buyer trust not lowered in payload: %v", p.BuyerTrust)
	}
}

func TestEventRecorder_KeepsFirstError(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var buf bytes.Buffer
	rec := NewEventRecorder(db, "ep1", zerolog.New(&buf))
	s := deal.NewDialogueState()
	rec.OnOfferMade(s.Append(deal.NewOffer(deal.Buyer, 500, "", deal.IntentOffer)), s)
	rec.RecordOutcome(s)

	if rec.Err() == nil {
		t.Fatal("expected a recorded error")
	}
	if !strings.Contains(buf.String(), "event not recorded") {
		t.Errorf("expected warning in log, got %q", buf.String())
	}
}

// #endregion recorder-tests

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "warn", Out: &buf})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("level filter not applied: %q", buf.String())
	}

	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
