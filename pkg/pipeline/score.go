package pipeline

import (
	"math"
	"sort"
	"time"

	"github.com/matzehuels/usedby/pkg/github"
)

// halfLife is how long it takes a repository's score to halve with no
// pushes: a year-dormant repo counts half its stars.
const halfLife = 365 * 24 * time.Hour

// FilterDependents drops forks, archived repositories, and anything below
// the star threshold. A repository exactly at minStars survives. Order is
// preserved.
func FilterDependents(repos []github.DependentRepo, minStars int) []github.DependentRepo {
	kept := make([]github.DependentRepo, 0, len(repos))
	for _, repo := range repos {
		if repo.IsFork || repo.Archived || repo.Stars < minStars {
			continue
		}
		kept = append(kept, repo)
	}
	return kept
}

// ScoreDependents assigns each repository a recency-decayed popularity score
// and returns them sorted by score descending. Equal scores keep their
// incoming relative order, so reruns over the same data are deterministic.
func ScoreDependents(repos []github.DependentRepo, now time.Time) []github.ScoredRepo {
	scored := make([]github.ScoredRepo, 0, len(repos))
	for _, repo := range repos {
		scored = append(scored, github.ScoredRepo{
			DependentRepo: repo,
			Score:         score(repo, now),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// score is stars decayed by half per year since the last push. An unknown
// or unparseable push date zeroes the score rather than guessing; a push
// date in the future (clock skew) gets no decay and no boost.
func score(repo github.DependentRepo, now time.Time) float64 {
	if repo.LastPush == "" {
		return 0
	}
	pushed, err := time.Parse(time.RFC3339, repo.LastPush)
	if err != nil {
		return 0
	}
	age := now.Sub(pushed)
	if age < 0 {
		age = 0
	}
	decay := math.Pow(0.5, float64(age)/float64(halfLife))
	return float64(repo.Stars) * decay
}
