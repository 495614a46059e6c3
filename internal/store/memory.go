package store

// #region imports
import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

// #endregion

// #region schema

const profileOutcomesSchema = `
CREATE TABLE IF NOT EXISTS profile_outcomes (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    episode_id  TEXT NOT NULL,
    profile     TEXT NOT NULL,
    role        TEXT NOT NULL,
    quality     REAL NOT NULL,
    agreed      INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_profile_outcomes_lookup
ON profile_outcomes(role, profile);
`

// MinProfileSamples is how many outcomes a profile needs before
// BestProfile will pick it.
const MinProfileSamples = 3

// profileHalfLife weights outcomes by age, in hours.
const profileHalfLife = 7.0 * 24.0

// #endregion

// #region record-outcome

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// RecordProfileOutcome persists a single profile outcome row.
func (s *Store) RecordProfileOutcome(po ProfileOutcome) error {
	return insertProfileOutcome(s.db, po)
}

func insertProfileOutcome(db execer, po ProfileOutcome) error {
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(`
		INSERT INTO profile_outcomes (episode_id, profile, role, quality, agreed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		po.EpisodeID, po.Profile, po.Role.String(), po.Quality, boolInt(po.Agreed),
		po.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert profile outcome: %w", err)
	}
	return nil
}

// profileOutcomes derives one outcome per named side of an episode.
func profileOutcomes(rec EpisodeRecord) []ProfileOutcome {
	var buyerQ, sellerQ float64
	agreed := rec.DealPrice != nil
	if zone := rec.BuyerValue - rec.SellerCost; agreed && zone > 0 {
		buyerQ = (rec.BuyerValue - *rec.DealPrice) / zone
		sellerQ = (*rec.DealPrice - rec.SellerCost) / zone
	}

	var out []ProfileOutcome
	if rec.BuyerProfile != "" && rec.BuyerProfile != HumanProfile {
		out = append(out, ProfileOutcome{EpisodeID: rec.ID, Profile: rec.BuyerProfile, Role: deal.Buyer, Quality: buyerQ, Agreed: agreed, CreatedAt: rec.CreatedAt})
	}
	if rec.SellerProfile != "" && rec.SellerProfile != HumanProfile {
		out = append(out, ProfileOutcome{EpisodeID: rec.ID, Profile: rec.SellerProfile, Role: deal.Seller, Quality: sellerQ, Agreed: agreed, CreatedAt: rec.CreatedAt})
	}
	return out
}

// #endregion

// #region best-profile

// BestProfile returns the profile with the highest decay-weighted quality
// when playing role. Returns ("", 0, nil) if no profile has enough samples.
func (s *Store) BestProfile(role deal.Role) (string, float64, error) {
	rows, err := s.db.Query(`
		SELECT profile, quality, created_at
		FROM profile_outcomes
		WHERE role = ?`,
		role.String(),
	)
	if err != nil {
		return "", 0, fmt.Errorf("query profile outcomes: %w", err)
	}
	defer rows.Close()

	type profileAccum struct {
		weightedSum float64
		totalWeight float64
		count       int
	}

	now := time.Now()
	accum := make(map[string]*profileAccum)

	for rows.Next() {
		var name string
		var quality float64
		var createdAtStr string
		if err := rows.Scan(&name, &quality, &createdAtStr); err != nil {
			return "", 0, err
		}
		createdAt, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			continue
		}
		weight := math.Exp(-now.Sub(createdAt).Hours() / profileHalfLife)

		if _, ok := accum[name]; !ok {
			accum[name] = &profileAccum{}
		}
		accum[name].weightedSum += quality * weight
		accum[name].totalWeight += weight
		accum[name].count++
	}
	if err := rows.Err(); err != nil {
		return "", 0, err
	}

	var best string
	bestScore := -1.0
	for name, a := range accum {
		if a.count < MinProfileSamples || a.totalWeight == 0 {
			continue
		}
		avg := a.weightedSum / a.totalWeight
		if avg > bestScore || (avg == bestScore && name < best) {
			bestScore = avg
			best = name
		}
	}
	if best == "" {
		return "", 0, nil
	}
	return best, bestScore, nil
}

// #endregion
