package gate

import (
	"context"
	"strconv"

	"github.com/fileforge/fileforge/internal/server/models"
)

func scoreKey(id string) string { return "suspicion:" + id }

// suspicionScore computes the heuristic abuse score over the trailing usage
// window, memoized for a short TTL so a traffic burst does not recompute the
// aggregation on every request. Concurrent requests for the same credential
// may race on the cache; the score is advisory and eventually consistent.
func (g *Gate) suspicionScore(ctx context.Context, cred *models.Credential) int {
	if v, err := g.cache.Get(ctx, scoreKey(cred.ID)); err == nil {
		if score, err := strconv.Atoi(v); err == nil {
			return score
		}
	}

	since := g.clock.Now().Add(-g.cfg.ScoreWindow)
	stats, err := g.rm.Usage(g.db).WindowStats(ctx, cred.ID, since)
	if err != nil {
		// Scoring is advisory; a failed aggregation must not reject traffic.
		g.logger.Error(ctx, "suspicion window aggregation failed",
			"credential_id", cred.ID, "error", err)
		return 0
	}

	score := scoreStats(stats, g.cfg)

	if err := g.cache.Set(ctx, scoreKey(cred.ID), strconv.Itoa(score), g.cfg.ScoreTTL); err != nil {
		g.logger.Warn(ctx, "failed to cache suspicion score",
			"credential_id", cred.ID, "error", err)
	}
	return score
}

// scoreStats applies the configured thresholds to a usage window.
func scoreStats(stats *models.UsageWindowStats, cfg Config) int {
	score := 0
	if stats.DistinctIPs > cfg.MaxDistinctIPs {
		score += 3
	}
	if stats.DistinctAgents > cfg.MaxDistinctAgents {
		score += 2
	}
	if stats.Requests > cfg.MaxRequests {
		score += 3
	}
	if stats.ErrorRate > cfg.MaxErrorRate {
		score += 2
	}
	return score
}
