// Package recommend maintains a preference profile from a bounded log of
// user interactions and scores catalog items against it.
package recommend

import (
	"math"
	"sort"
	"sync"
	"time"

	"movie-discovery-service/internal/models"
)

const (
	defaultMaxHistory = 500
	defaultRetention  = 90 * 24 * time.Hour

	// persistEvery bounds profile I/O: the profile is written after this
	// many recorded interactions, not on every write.
	persistEvery = 10

	// decadeDamping keeps decade preference a mild signal relative to
	// genre weight.
	decadeDamping = 0.3

	// seenPenalty effectively disqualifies already-interacted items.
	seenPenalty = -1000.0
)

// actionWeights is the per-genre weight applied for each interaction kind.
var actionWeights = map[models.Action]float64{
	models.ActionSuperLiked: 2.5,
	models.ActionLiked:      1.5,
	models.ActionWatchLater: 1.0,
	models.ActionViewed:     0.2,
	models.ActionSkipped:    -0.4,
}

// profile is the serialized unit: the interaction history plus every
// derived aggregate, written and loaded as one document.
type profile struct {
	History       []models.InteractionEvent `json:"history"`
	GenreWeights  map[int]float64           `json:"genre_weights"`
	DecadeWeights map[int]float64           `json:"decade_weights"`
	RatingLow     float64                   `json:"rating_low"`
	RatingHigh    float64                   `json:"rating_high"`
	RatingAvg     float64                   `json:"rating_avg"`
}

func newProfile() profile {
	return profile{
		GenreWeights:  make(map[int]float64),
		DecadeWeights: make(map[int]float64),
		RatingLow:     6.0,
		RatingHigh:    8.0,
		RatingAvg:     7.0,
	}
}

// Scorer owns the profile exclusively; all methods serialize on one mutex.
type Scorer struct {
	mu         sync.Mutex
	file       string
	maxHistory int
	retention  time.Duration

	p      profile
	seen   map[int]bool
	writes int

	now func() time.Time
}

// NewScorer creates a Scorer persisting to file. A missing or malformed
// profile file is treated as "no prior profile", never as a hard failure.
func NewScorer(file string, maxHistory int, retention time.Duration) *Scorer {
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	s := &Scorer{
		file:       file,
		maxHistory: maxHistory,
		retention:  retention,
		p:          newProfile(),
		seen:       make(map[int]bool),
		now:        time.Now,
	}
	s.load()
	return s
}

// RecordInteraction appends an event and incrementally updates the derived
// weights. History is trimmed on every write: first by retention window,
// then capped to the max size, oldest entries evicted first.
func (s *Scorer) RecordInteraction(m models.Movie, action models.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := models.InteractionEvent{
		MovieID:     m.ID,
		Action:      action,
		GenreIDs:    m.GenreIDs,
		Rating:      m.VoteAverage,
		ReleaseYear: m.ReleaseYear(),
		Timestamp:   s.now(),
	}
	s.p.History = append(s.p.History, ev)
	s.applyLocked(ev)
	s.trimLocked()

	s.writes++
	if s.writes >= persistEvery {
		s.persistLocked()
	}
}

func (s *Scorer) applyLocked(ev models.InteractionEvent) {
	w := actionWeights[ev.Action]
	for _, g := range ev.GenreIDs {
		s.p.GenreWeights[g] += w
	}

	if ev.Action == models.ActionLiked || ev.Action == models.ActionSuperLiked {
		if ev.Rating > 0 {
			s.p.RatingAvg = s.p.RatingAvg*0.9 + ev.Rating*0.1
			s.p.RatingLow = clamp(math.Min(s.p.RatingLow, ev.Rating-0.5), 0, 10)
			s.p.RatingHigh = clamp(math.Max(s.p.RatingHigh, ev.Rating+0.5), 0, 10)
		}
	}

	if ev.ReleaseYear > 0 {
		decade := (ev.ReleaseYear / 10) * 10
		s.p.DecadeWeights[decade] += w * decadeDamping
	}

	s.seen[ev.MovieID] = true
}

// trimLocked enforces both bounds: the retention window and the size cap.
func (s *Scorer) trimLocked() {
	cutoff := s.now().Add(-s.retention)
	kept := s.p.History[:0]
	for _, ev := range s.p.History {
		if ev.Timestamp.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	s.p.History = kept

	if excess := len(s.p.History) - s.maxHistory; excess > 0 {
		s.p.History = append(s.p.History[:0], s.p.History[excess:]...)
	}

	s.seen = make(map[int]bool, len(s.p.History))
	for _, ev := range s.p.History {
		s.seen[ev.MovieID] = true
	}
}

// Score rates a movie against the profile. The scale is unbounded and
// additive, roughly -20..+60 for unseen items: genre affinity dominates,
// rating closeness is secondary, recency/decade and popularity are minor
// tie-breakers, and already-seen items take a disqualifying penalty.
func (s *Scorer) Score(m models.Movie) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoreLocked(m)
}

func (s *Scorer) scoreLocked(m models.Movie) float64 {
	if s.seen[m.ID] {
		return seenPenalty
	}

	var score float64

	// Genre affinity: average learned weight across the movie's genres.
	if len(m.GenreIDs) > 0 {
		var sum float64
		for _, g := range m.GenreIDs {
			sum += s.p.GenreWeights[g]
		}
		score += (sum / float64(len(m.GenreIDs))) * 12
	}

	// Rating closeness to the preferred range.
	if m.VoteAverage > 0 {
		var dist float64
		switch {
		case m.VoteAverage < s.p.RatingLow:
			dist = s.p.RatingLow - m.VoteAverage
		case m.VoteAverage > s.p.RatingHigh:
			dist = m.VoteAverage - s.p.RatingHigh
		}
		score += math.Max(0, 6-dist*2)
	}

	// Recency bonus plus decade preference.
	if year := m.ReleaseYear(); year > 0 {
		if year >= s.now().Year()-2 {
			score += 3
		}
		score += clamp(s.p.DecadeWeights[(year/10)*10], -5, 5)
	}

	// Mild popularity bonus from vote volume.
	score += math.Min(2, math.Log10(float64(m.VoteCount)+1)*0.4)

	return score
}

// Rank scores every movie and returns them stably sorted by descending
// score.
func (s *Scorer) Rank(items []models.Movie) []models.ScoredMovie {
	s.mu.Lock()
	scored := make([]models.ScoredMovie, 0, len(items))
	for _, m := range items {
		scored = append(scored, models.ScoredMovie{Movie: m, Score: s.scoreLocked(m)})
	}
	s.mu.Unlock()

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// SortByRecommendation returns the movies stably sorted by descending score.
func (s *Scorer) SortByRecommendation(items []models.Movie) []models.Movie {
	ranked := s.Rank(items)
	out := make([]models.Movie, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.Movie)
	}
	return out
}

// GetTopGenres returns up to limit genres with positive weight, strongest
// first.
func (s *Scorer) GetTopGenres(limit int) []models.GenreWeight {
	s.mu.Lock()
	defer s.mu.Unlock()

	top := make([]models.GenreWeight, 0, len(s.p.GenreWeights))
	for g, w := range s.p.GenreWeights {
		if w > 0 {
			top = append(top, models.GenreWeight{GenreID: g, Weight: w})
		}
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Weight != top[j].Weight {
			return top[i].Weight > top[j].Weight
		}
		return top[i].GenreID < top[j].GenreID
	})
	if limit > 0 && len(top) > limit {
		top = top[:limit]
	}
	return top
}

// GetDislikedGenres returns genres with negative weight, most disliked
// first.
func (s *Scorer) GetDislikedGenres() []models.GenreWeight {
	s.mu.Lock()
	defer s.mu.Unlock()

	disliked := make([]models.GenreWeight, 0)
	for g, w := range s.p.GenreWeights {
		if w < 0 {
			disliked = append(disliked, models.GenreWeight{GenreID: g, Weight: w})
		}
	}
	sort.Slice(disliked, func(i, j int) bool {
		if disliked[i].Weight != disliked[j].Weight {
			return disliked[i].Weight < disliked[j].Weight
		}
		return disliked[i].GenreID < disliked[j].GenreID
	})
	return disliked
}

// Summary returns the profile overview served by the preferences endpoint.
func (s *Scorer) Summary() models.PreferenceSummary {
	top := s.GetTopGenres(5)
	disliked := s.GetDislikedGenres()

	s.mu.Lock()
	defer s.mu.Unlock()
	return models.PreferenceSummary{
		TopGenres:      top,
		DislikedGenres: disliked,
		RatingLow:      s.p.RatingLow,
		RatingHigh:     s.p.RatingHigh,
		HistorySize:    len(s.p.History),
	}
}

// HistorySize returns the number of retained interaction events.
func (s *Scorer) HistorySize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.p.History)
}

// ImportHistory replays externally stored events into an empty profile,
// typically to rebuild from the durable interaction log when the profile
// file is missing. Events already present are not deduplicated; callers
// import only when the history is empty.
func (s *Scorer) ImportHistory(events []models.InteractionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		s.p.History = append(s.p.History, ev)
		s.applyLocked(ev)
	}
	s.trimLocked()
	s.persistLocked()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
