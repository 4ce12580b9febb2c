package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"movie-discovery-service/internal/batch"
	"movie-discovery-service/internal/cache"
	"movie-discovery-service/internal/coalesce"
	"movie-discovery-service/internal/models"
	"movie-discovery-service/internal/recommend"
	"movie-discovery-service/internal/repository"
	"movie-discovery-service/internal/search"
	"movie-discovery-service/internal/tmdb"
)

const recommendationsCacheTTL = 10 * time.Minute

// Catalog is the subset of the TMDB client the service consumes, split out
// so tests can drive the pipeline with a fake.
type Catalog interface {
	Trending(ctx context.Context, page int) (*models.PageResult, error)
	Popular(ctx context.Context, page int) (*models.PageResult, error)
	TopRated(ctx context.Context, page int) (*models.PageResult, error)
	NowPlaying(ctx context.Context, page int) (*models.PageResult, error)
	Upcoming(ctx context.Context, page int) (*models.PageResult, error)
	Search(ctx context.Context, query string, page int) (*models.PageResult, error)
	MovieDetail(ctx context.Context, id int) (*tmdb.MovieDetail, error)
	Videos(ctx context.Context, id int) (*tmdb.VideoResponse, error)
	Credits(ctx context.Context, id int) (*tmdb.Credits, error)
}

// Options tunes the request pipeline.
type Options struct {
	CoalesceTTL      time.Duration
	DebounceInterval time.Duration
	BatchChunkSize   int
	BatchChunkPause  time.Duration
}

// DiscoveryService fronts the TMDB client with the coalescer, the offline
// cache, the search debouncer and the batch manager, and feeds the
// recommendation scorer.
type DiscoveryService struct {
	catalog      Catalog
	pages        *coalesce.Coalescer[*models.PageResult]
	details      *coalesce.Coalescer[*tmdb.MovieDetail]
	movieCache   *cache.MovieCache
	debouncer    *search.Debouncer
	batch        *batch.Manager
	scorer       *recommend.Scorer
	interactions *repository.InteractionRepository
	redis        *redis.Client
}

// NewDiscoveryService wires the pipeline. interactions and rdb may be nil;
// the service then runs without the durable log or the shared response
// cache.
func NewDiscoveryService(
	catalog Catalog,
	movieCache *cache.MovieCache,
	scorer *recommend.Scorer,
	interactions *repository.InteractionRepository,
	rdb *redis.Client,
	opts Options,
) *DiscoveryService {
	if opts.CoalesceTTL <= 0 {
		opts.CoalesceTTL = 10 * time.Minute
	}

	s := &DiscoveryService{
		catalog:      catalog,
		pages:        coalesce.New[*models.PageResult](opts.CoalesceTTL),
		details:      coalesce.New[*tmdb.MovieDetail](opts.CoalesceTTL),
		movieCache:   movieCache,
		batch:        batch.NewManager(opts.BatchChunkSize, opts.BatchChunkPause),
		scorer:       scorer,
		interactions: interactions,
		redis:        rdb,
	}
	s.debouncer = search.New(opts.DebounceInterval, s.searchPage)
	return s
}

// ---- Category Listings ----

// Trending returns the daily trending page.
func (s *DiscoveryService) Trending(ctx context.Context, page int) (*models.PageResult, error) {
	return s.listCategory(ctx, models.CategoryTrending, page, s.catalog.Trending)
}

// Popular returns the popular page.
func (s *DiscoveryService) Popular(ctx context.Context, page int) (*models.PageResult, error) {
	return s.listCategory(ctx, models.CategoryPopular, page, s.catalog.Popular)
}

// TopRated returns the top-rated page.
func (s *DiscoveryService) TopRated(ctx context.Context, page int) (*models.PageResult, error) {
	return s.listCategory(ctx, models.CategoryTopRated, page, s.catalog.TopRated)
}

// NowPlaying returns the now-playing page.
func (s *DiscoveryService) NowPlaying(ctx context.Context, page int) (*models.PageResult, error) {
	return s.listCategory(ctx, models.CategoryNowPlaying, page, s.catalog.NowPlaying)
}

// Upcoming returns the upcoming page.
func (s *DiscoveryService) Upcoming(ctx context.Context, page int) (*models.PageResult, error) {
	return s.listCategory(ctx, models.CategoryUpcoming, page, s.catalog.Upcoming)
}

// listCategory coalesces identical page requests and keeps the offline
// cache fed. Page 1 replaces the category index (it is the category's
// canonical window); deeper pages only warm per-movie entries. When the
// network path fails and a usable offline copy of page 1 exists, that copy
// is served instead.
func (s *DiscoveryService) listCategory(ctx context.Context, category models.CacheCategory, page int, fetch func(context.Context, int) (*models.PageResult, error)) (*models.PageResult, error) {
	key := fmt.Sprintf("%s_page_%d", category, page)

	result, err := s.pages.Do(ctx, key, func(ctx context.Context) (*models.PageResult, error) {
		res, err := fetch(ctx, page)
		if err != nil {
			return nil, err
		}
		if page == 1 {
			s.movieCache.CacheMany(res.Results, category)
		} else {
			for _, m := range res.Results {
				s.movieCache.Cache(m, "")
			}
		}
		return res, nil
	})
	if err != nil {
		if page == 1 && s.movieCache.HasCachedData(category) {
			slog.Warn("serving offline cache after fetch failure", "category", category, "error", err)
			items := s.movieCache.GetItems(category)
			return &models.PageResult{Page: 1, Results: items, TotalPages: 1, TotalResults: len(items)}, nil
		}
		return nil, err
	}
	return result, nil
}

// ---- Search ----

// Search debounces rapid queries; only the newest within the debounce
// window reaches the network.
func (s *DiscoveryService) Search(ctx context.Context, query string, page int) (*models.PageResult, error) {
	return s.debouncer.Search(ctx, query, page)
}

func (s *DiscoveryService) searchPage(ctx context.Context, query string, page int) (*models.PageResult, error) {
	key := fmt.Sprintf("search_%s_page_%d", query, page)
	return s.pages.Do(ctx, key, func(ctx context.Context) (*models.PageResult, error) {
		res, err := s.catalog.Search(ctx, query, page)
		if err != nil {
			return nil, err
		}
		if page == 1 {
			s.movieCache.CacheMany(res.Results, models.CategorySearch)
		}
		return res, nil
	})
}

// ---- Details ----

// MovieDetail returns detailed info for one movie, coalescing concurrent
// lookups of the same id.
func (s *DiscoveryService) MovieDetail(ctx context.Context, id int) (*tmdb.MovieDetail, error) {
	key := fmt.Sprintf("movie_%d", id)
	return s.details.Do(ctx, key, func(ctx context.Context) (*tmdb.MovieDetail, error) {
		detail, err := s.catalog.MovieDetail(ctx, id)
		if err != nil {
			return nil, err
		}
		s.movieCache.Cache(detail.Movie(), "")
		return detail, nil
	})
}

// Videos returns trailers and teasers for a movie.
func (s *DiscoveryService) Videos(ctx context.Context, id int) (*tmdb.VideoResponse, error) {
	return s.catalog.Videos(ctx, id)
}

// Credits returns cast and crew for a movie.
func (s *DiscoveryService) Credits(ctx context.Context, id int) (*tmdb.Credits, error) {
	return s.catalog.Credits(ctx, id)
}

// MoviesByIDs resolves many ids cache-first, fetching misses in paced
// chunks. The batch is fail-fast: one failed fetch fails the whole call.
func (s *DiscoveryService) MoviesByIDs(ctx context.Context, ids []int) ([]models.Movie, error) {
	return batch.FetchAll(ctx, s.batch, ids, func(ctx context.Context, id int) (models.Movie, error) {
		if m, ok := s.movieCache.Get(id); ok {
			return m, nil
		}
		detail, err := s.MovieDetail(ctx, id)
		if err != nil {
			return models.Movie{}, err
		}
		return detail.Movie(), nil
	})
}

// ---- Recommendations & Preferences ----

// Recommendations ranks the locally cached catalog pool against the user's
// preference profile. Responses are shared through Redis for a short TTL.
func (s *DiscoveryService) Recommendations(ctx context.Context, limit int) (*models.RecommendationResponse, error) {
	if limit <= 0 {
		limit = 20
	}

	cacheKey := fmt.Sprintf("recommendations:%d", limit)
	if cached, err := s.getFromCache(ctx, cacheKey); err == nil {
		var resp models.RecommendationResponse
		if json.Unmarshal([]byte(cached), &resp) == nil {
			slog.Debug("recommendations cache hit", "key", cacheKey)
			return &resp, nil
		}
	}

	pool, err := s.recommendationPool(ctx)
	if err != nil {
		return nil, err
	}

	ranked := s.scorer.Rank(pool)
	recs := make([]models.ScoredMovie, 0, limit)
	for _, r := range ranked {
		if len(recs) == limit {
			break
		}
		recs = append(recs, r)
	}

	ids := make([]int, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	s.movieCache.CacheMany(moviesOf(recs), models.CategoryRecommendations)
	slog.Debug("recommendations generated", "pool", len(pool), "returned", len(ids))

	resp := &models.RecommendationResponse{
		Recommendations: recs,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if data, err := json.Marshal(resp); err == nil {
		s.setCache(ctx, cacheKey, string(data), recommendationsCacheTTL)
	}
	return resp, nil
}

// recommendationPool gathers candidate movies from the cached browse
// categories, fetching the popular and trending pages when the cache is
// cold. Duplicates collapse by id.
func (s *DiscoveryService) recommendationPool(ctx context.Context) ([]models.Movie, error) {
	seen := make(map[int]bool)
	var pool []models.Movie

	add := func(items []models.Movie) {
		for _, m := range items {
			if !seen[m.ID] {
				seen[m.ID] = true
				pool = append(pool, m)
			}
		}
	}

	for _, category := range []models.CacheCategory{
		models.CategoryTrending,
		models.CategoryPopular,
		models.CategoryTopRated,
		models.CategoryNowPlaying,
		models.CategoryUpcoming,
	} {
		if s.movieCache.HasCachedData(category) {
			add(s.movieCache.GetItems(category))
		}
	}
	if len(pool) > 0 {
		return pool, nil
	}

	popular, err := s.Popular(ctx, 1)
	if err != nil {
		return nil, err
	}
	add(popular.Results)

	if trending, err := s.Trending(ctx, 1); err == nil {
		add(trending.Results)
	}
	return pool, nil
}

// RecordInteraction feeds the scorer, appends to the durable log and drops
// now-stale recommendation responses.
func (s *DiscoveryService) RecordInteraction(ctx context.Context, movieID int, action models.Action) error {
	movie, ok := s.movieCache.Get(movieID)
	if !ok {
		detail, err := s.MovieDetail(ctx, movieID)
		if err != nil {
			return fmt.Errorf("resolve movie %d: %w", movieID, err)
		}
		movie = detail.Movie()
	}

	s.scorer.RecordInteraction(movie, action)

	if s.interactions != nil {
		ev := models.InteractionEvent{
			MovieID:     movie.ID,
			Action:      action,
			GenreIDs:    movie.GenreIDs,
			Rating:      movie.VoteAverage,
			ReleaseYear: movie.ReleaseYear(),
			Timestamp:   time.Now(),
		}
		if err := s.interactions.Insert(ev); err != nil {
			slog.Error("failed to persist interaction", "movie_id", movie.ID, "error", err)
		}
	}

	s.invalidateRecommendations(ctx)
	return nil
}

// Preferences returns the current profile summary.
func (s *DiscoveryService) Preferences() models.PreferenceSummary {
	return s.scorer.Summary()
}

// ResetPreferences clears the profile, the durable log and any shared
// recommendation responses.
func (s *DiscoveryService) ResetPreferences(ctx context.Context) {
	s.scorer.Reset()
	if s.interactions != nil {
		if err := s.interactions.Purge(); err != nil {
			slog.Error("failed to purge interaction log", "error", err)
		}
	}
	s.invalidateRecommendations(ctx)
}

// RestoreProfile rebuilds the scorer from the durable log when the profile
// file held no history, typically after a fresh install or a corrupt file.
func (s *DiscoveryService) RestoreProfile(maxHistory int) {
	if s.interactions == nil || s.scorer.HistorySize() > 0 {
		return
	}
	events, err := s.interactions.RecentHistory(maxHistory)
	if err != nil {
		slog.Error("failed to load interaction history", "error", err)
		return
	}
	if len(events) == 0 {
		return
	}
	s.scorer.ImportHistory(events)
	slog.Info("preference profile rebuilt from interaction log", "events", len(events))
}

// Shutdown flushes the persisted tiers.
func (s *DiscoveryService) Shutdown() {
	s.scorer.Flush()
	s.movieCache.Flush()
}

// ---- Redis Helpers ----

func (s *DiscoveryService) getFromCache(ctx context.Context, key string) (string, error) {
	if s.redis == nil {
		return "", fmt.Errorf("redis not available")
	}
	return s.redis.Get(ctx, key).Result()
}

func (s *DiscoveryService) setCache(ctx context.Context, key, value string, ttl time.Duration) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		slog.Error("failed to set cache", "key", key, "error", err)
	}
}

func (s *DiscoveryService) invalidateRecommendations(ctx context.Context) {
	if s.redis == nil {
		return
	}
	iter := s.redis.Scan(ctx, 0, "recommendations:*", 0).Iterator()
	for iter.Next(ctx) {
		s.redis.Del(ctx, iter.Val())
	}
}

func moviesOf(scored []models.ScoredMovie) []models.Movie {
	out := make([]models.Movie, 0, len(scored))
	for _, r := range scored {
		out = append(out, r.Movie)
	}
	return out
}
