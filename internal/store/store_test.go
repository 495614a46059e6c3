package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
	"github.com/danielpatrickdp/dealdialect/internal/logging"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func memDB(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func agreedEpisode(t *testing.T) EpisodeRecord {
	t.Helper()
	ctx := deal.NewDealContext(1000, 900, 700, 10, deal.WithItem(deal.Item{Title: "bike", Category: "sports"}))
	s := deal.NewDialogueState()
	s.Append(deal.NewOffer(deal.Buyer, 720, "I can buy for $720.00", deal.IntentCounter))
	s.NextRound()
	s.Append(deal.NewBluff(deal.Seller, 950, "This is my absolute limit.", 0.7))
	s.NextRound()
	s.Append(deal.NewOffer(deal.Buyer, 820, "Deal at $820.00.", deal.IntentAccept))
	s.SetDealPrice(820)

	rec, err := NewEpisodeRecord(ctx, s, "cooperative", "hardball", 42)
	if err != nil {
		t.Fatalf("NewEpisodeRecord: %v", err)
	}
	return rec
}

func TestSaveAndGetEpisode(t *testing.T) {
	s := tempDB(t)
	rec := agreedEpisode(t)

	id, err := s.SaveEpisode(rec)
	if err != nil {
		t.Fatalf("SaveEpisode: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated ID")
	}

	got, err := s.GetEpisode(id)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if got.Outcome != "AGREEMENT" {
		t.Errorf("outcome = %s", got.Outcome)
	}
	if got.DealPrice == nil || *got.DealPrice != 820 {
		t.Fatalf("deal price = %v", got.DealPrice)
	}
	if got.Seed != 42 || got.BuyerProfile != "cooperative" || got.SellerProfile != "hardball" {
		t.Errorf("unexpected header %+v", got)
	}
	if got.Item.Title != "bike" || got.Item.Category != "sports" {
		t.Errorf("item = %+v", got.Item)
	}
	if len(got.Offers) != 3 {
		t.Fatalf("expected 3 offers, got %d", len(got.Offers))
	}
	b := got.Offers[1]
	if !b.IsBluff || b.Role != deal.Seller || b.Intent != deal.IntentBluffPuff || b.BluffStrength != 0.7 || b.RoundNumber != 1 {
		t.Errorf("bluff offer = %+v", b)
	}
	if got.MetricsJSON == "" {
		t.Error("expected metrics JSON")
	}
	if got.Context().ZOPASize() != 200 {
		t.Errorf("context ZOPA = %v", got.Context().ZOPASize())
	}
}

func TestSeedAboveInt64Range(t *testing.T) {
	s := memDB(t)
	rec := agreedEpisode(t)
	rec.Seed = 1<<63 + 5
	id, err := s.SaveEpisode(rec)
	if err != nil {
		t.Fatalf("SaveEpisode: %v", err)
	}
	got, err := s.GetEpisode(id)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if got.Seed != 1<<63+5 {
		t.Errorf("seed = %d", got.Seed)
	}
}

func TestGetEpisodeNotFound(t *testing.T) {
	s := memDB(t)
	_, err := s.GetEpisode("nonexistent-id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNoDealEpisode(t *testing.T) {
	s := memDB(t)
	ctx := deal.NewDealContext(1000, 700, 900, 5)
	st := deal.NewDialogueState()
	st.Append(deal.NewOffer(deal.Buyer, 0, "I'm walking away.", deal.IntentWalkAway))
	st.SetTerminal()

	rec, err := NewEpisodeRecord(ctx, st, "", "", 0)
	if err != nil {
		t.Fatalf("NewEpisodeRecord: %v", err)
	}
	id, err := s.SaveEpisode(rec)
	if err != nil {
		t.Fatalf("SaveEpisode: %v", err)
	}
	got, _ := s.GetEpisode(id)
	if got.Outcome != "NO_DEAL" || got.DealPrice != nil {
		t.Errorf("got %s %v", got.Outcome, got.DealPrice)
	}
}

func TestListEpisodes(t *testing.T) {
	s := memDB(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := agreedEpisode(t)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if _, err := s.SaveEpisode(rec); err != nil {
			t.Fatalf("SaveEpisode: %v", err)
		}
	}

	eps, err := s.ListEpisodes(2)
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(eps) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(eps))
	}
	if !eps[0].CreatedAt.After(eps[1].CreatedAt) {
		t.Errorf("expected newest first: %v, %v", eps[0].CreatedAt, eps[1].CreatedAt)
	}
	if eps[0].Offers != nil {
		t.Error("list should not load offers")
	}
}

func TestEventsShareDatabase(t *testing.T) {
	s := memDB(t)
	if _, err := logging.LogEvent(s.DB(), logging.EventEntry{EpisodeID: "ep1", Kind: logging.KindOffer}); err != nil {
		t.Fatalf("LogEvent against store schema: %v", err)
	}
}
