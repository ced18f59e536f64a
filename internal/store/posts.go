package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/webdevsk/linkedin-feed-job-scraper/internal/linkedin"
)

// Storage keys. Names mirror the persisted layout one-to-one so an existing
// database stays readable across versions.
const (
	keyJobPosts        = "jobPosts"
	keyLifetimeScraped = "lifeTimeScraped"
	keyActiveSession   = "activeTabId"
	keyRunningSession  = "runningTabId"
)

// ValidationError rejects one candidate and with it the whole batch it
// arrived in. Field names the first offending field; Candidate is the raw
// input for the error report.
type ValidationError struct {
	Field     string
	Candidate linkedin.Candidate
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid post candidate: field %q (postId=%q)", e.Field, e.Candidate.PostID)
}

// PostStore is the keyed upsert store for scraped posts. The collection is
// one JSON document in the KV substrate: every operation reads the whole
// map, mutates it in memory and writes it back, so a call either lands
// completely or not at all.
type PostStore struct {
	kv *KV
}

func NewPostStore(kv *KV) *PostStore {
	return &PostStore{kv: kv}
}

// Upsert validates and merges a batch of candidates. All-or-nothing: any
// candidate failing validation rejects the entire batch with no write.
// FirstScrapedAt is preserved for existing ids and set to now for new ones;
// UpdatedAt is always now. The lifetime counter advances by the number of
// newly created records only.
func (s *PostStore) Upsert(ctx context.Context, cands []linkedin.Candidate) ([]linkedin.PostRecord, error) {
	if len(cands) == 0 {
		return nil, nil
	}

	posts, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	created := 0
	records := make([]linkedin.PostRecord, 0, len(cands))
	for _, cand := range cands {
		if err := validateCandidate(cand); err != nil {
			return nil, err
		}
		rec := linkedin.PostRecord{
			PostID:         cand.PostID,
			PostURL:        cand.PostURL,
			PostBody:       cand.PostBody,
			PostAuthor:     cand.PostAuthor,
			PostContents:   cand.PostContents,
			PostedAt:       cand.PostedAt,
			FirstScrapedAt: now,
			UpdatedAt:      now,
		}
		if existing, ok := posts[cand.PostID]; ok {
			rec.FirstScrapedAt = existing.FirstScrapedAt
		} else {
			created++
		}
		posts[rec.PostID] = rec
		records = append(records, rec)
	}

	if err := s.writeAll(ctx, posts); err != nil {
		return nil, err
	}
	if created > 0 {
		if err := s.bumpLifetime(ctx, created); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// List returns all records, most recently scraped first.
func (s *PostStore) List(ctx context.Context) ([]linkedin.PostRecord, error) {
	posts, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	return sortRecords(posts), nil
}

// GetByIDs returns the records for the given ids, skipping unknown ones.
func (s *PostStore) GetByIDs(ctx context.Context, ids []string) ([]linkedin.PostRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	posts, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]linkedin.PostRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := posts[id]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// DeleteByIDs removes the given records.
func (s *PostStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	posts, err := s.readAll(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(posts, id)
	}
	return s.writeAll(ctx, posts)
}

// DeleteAll clears the collection. The lifetime counter is untouched: it
// counts everything ever scraped, not what is currently kept.
func (s *PostStore) DeleteAll(ctx context.Context) error {
	return s.writeAll(ctx, map[string]linkedin.PostRecord{})
}

// Count returns the number of currently stored records.
func (s *PostStore) Count(ctx context.Context) (int, error) {
	posts, err := s.readAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(posts), nil
}

// LifetimeCount returns the monotonically increasing total of records ever
// created.
func (s *PostStore) LifetimeCount(ctx context.Context) (int64, error) {
	raw, ok, err := s.kv.Get(ctx, keyLifetimeScraped)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt lifetime counter %q: %w", raw, err)
	}
	return n, nil
}

// Watch delivers the full new and previous collection snapshots (most recent
// first) on every write to the post collection. Each subscriber receives
// every change; the returned handle removes only this subscription.
func (s *PostStore) Watch(fn func(newRecords, oldRecords []linkedin.PostRecord)) (unwatch func()) {
	return s.kv.Watch(func(key, oldValue, newValue string) {
		if key != keyJobPosts {
			return
		}
		fn(sortRecords(decodeAll(newValue)), sortRecords(decodeAll(oldValue)))
	})
}

func (s *PostStore) readAll(ctx context.Context) (map[string]linkedin.PostRecord, error) {
	raw, ok, err := s.kv.Get(ctx, keyJobPosts)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]linkedin.PostRecord{}, nil
	}
	posts := map[string]linkedin.PostRecord{}
	if err := json.Unmarshal([]byte(raw), &posts); err != nil {
		return nil, fmt.Errorf("corrupt post collection: %w", err)
	}
	return posts, nil
}

func (s *PostStore) writeAll(ctx context.Context, posts map[string]linkedin.PostRecord) error {
	data, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("encode post collection: %w", err)
	}
	return s.kv.Set(ctx, keyJobPosts, string(data))
}

func (s *PostStore) bumpLifetime(ctx context.Context, n int) error {
	current, err := s.LifetimeCount(ctx)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, keyLifetimeScraped, strconv.FormatInt(current+int64(n), 10))
}

func decodeAll(raw string) map[string]linkedin.PostRecord {
	posts := map[string]linkedin.PostRecord{}
	if raw != "" {
		// Best effort: watch callbacks shouldn't die on a corrupt snapshot.
		_ = json.Unmarshal([]byte(raw), &posts)
	}
	return posts
}

func sortRecords(posts map[string]linkedin.PostRecord) []linkedin.PostRecord {
	records := make([]linkedin.PostRecord, 0, len(posts))
	for _, rec := range posts {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].FirstScrapedAt.Equal(records[j].FirstScrapedAt) {
			return records[i].FirstScrapedAt.After(records[j].FirstScrapedAt)
		}
		return records[i].PostID > records[j].PostID
	})
	return records
}

func validateCandidate(cand linkedin.Candidate) error {
	if cand.PostID == "" {
		return &ValidationError{Field: "postId", Candidate: cand}
	}
	if !isAbsoluteURL(cand.PostURL) {
		return &ValidationError{Field: "postUrl", Candidate: cand}
	}
	if cand.PostBody == "" {
		return &ValidationError{Field: "postBody", Candidate: cand}
	}
	if cand.PostAuthor != nil && cand.PostAuthor.URL != nil && !isAbsoluteURL(*cand.PostAuthor.URL) {
		return &ValidationError{Field: "postAuthor.url", Candidate: cand}
	}
	for _, item := range cand.PostContents {
		switch item.Type {
		case linkedin.ContentImage, linkedin.ContentVideo, linkedin.ContentArticle,
			linkedin.ContentJob, linkedin.ContentEmail, linkedin.ContentPhone:
		default:
			return &ValidationError{Field: "postContents.type", Candidate: cand}
		}
		// Contact items carry the raw matched string in URL; only link-like
		// items must parse.
		if item.Type == linkedin.ContentEmail || item.Type == linkedin.ContentPhone {
			if item.URL == "" {
				return &ValidationError{Field: "postContents.url", Candidate: cand}
			}
			continue
		}
		if (item.URL == "") == (item.ThumbnailURL == "") {
			return &ValidationError{Field: "postContents.url", Candidate: cand}
		}
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
