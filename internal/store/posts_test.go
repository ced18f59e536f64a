package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webdevsk/linkedin-feed-job-scraper/internal/linkedin"
)

func newTestPostStore(t *testing.T) *PostStore {
	t.Helper()
	return NewPostStore(newTestKV(t))
}

func candidate(id string) linkedin.Candidate {
	return linkedin.Candidate{
		PostID:   id,
		PostURL:  linkedin.ActivityURL(id),
		PostBody: "We are hiring for post " + id,
	}
}

func TestUpsertCreatesRecords(t *testing.T) {
	s := newTestPostStore(t)
	ctx := context.Background()

	records, err := s.Upsert(ctx, []linkedin.Candidate{candidate("1"), candidate("2")})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].PostID)
	assert.False(t, records[0].FirstScrapedAt.IsZero())
	assert.Equal(t, records[0].FirstScrapedAt, records[0].UpdatedAt)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	lifetime, err := s.LifetimeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), lifetime)
}

func TestUpsertPreservesFirstScrapedAt(t *testing.T) {
	s := newTestPostStore(t)
	ctx := context.Background()

	first, err := s.Upsert(ctx, []linkedin.Candidate{candidate("1")})
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	updated := candidate("1")
	updated.PostBody = "edited body"
	second, err := s.Upsert(ctx, []linkedin.Candidate{updated})
	require.NoError(t, err)

	assert.Equal(t, first[0].FirstScrapedAt, second[0].FirstScrapedAt)
	assert.True(t, second[0].UpdatedAt.After(first[0].UpdatedAt))
	assert.Equal(t, "edited body", second[0].PostBody)

	// Re-scraping an existing post is not a new record.
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	lifetime, err := s.LifetimeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lifetime)
}

func TestUpsertRejectsWholeBatch(t *testing.T) {
	s := newTestPostStore(t)
	ctx := context.Background()

	bad := candidate("2")
	bad.PostURL = "not-a-url"
	_, err := s.Upsert(ctx, []linkedin.Candidate{candidate("1"), bad})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "postUrl", verr.Field)
	assert.Equal(t, "2", verr.Candidate.PostID)

	// The valid sibling must not have landed either.
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	lifetime, err := s.LifetimeCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, lifetime)
}

func TestUpsertValidation(t *testing.T) {
	s := newTestPostStore(t)
	ctx := context.Background()

	badAuthorURL := "relative/path"
	authorCase := candidate("1")
	authorCase.PostAuthor = &linkedin.PostAuthor{URL: &badAuthorURL}

	unknownType := candidate("1")
	unknownType.PostContents = []linkedin.ContentItem{{Type: "gif", URL: "https://x.example/a"}}

	emptyEmail := candidate("1")
	emptyEmail.PostContents = []linkedin.ContentItem{{Type: linkedin.ContentEmail}}

	bothLinkFields := candidate("1")
	bothLinkFields.PostContents = []linkedin.ContentItem{{
		Type: linkedin.ContentImage, URL: "https://x.example/a", ThumbnailURL: "https://x.example/b",
	}}

	neitherLinkField := candidate("1")
	neitherLinkField.PostContents = []linkedin.ContentItem{{Type: linkedin.ContentImage}}

	emptyBody := candidate("1")
	emptyBody.PostBody = ""

	tests := []struct {
		name  string
		cand  linkedin.Candidate
		field string
	}{
		{"missing id", linkedin.Candidate{PostURL: "https://x.example/"}, "postId"},
		{"missing body", emptyBody, "postBody"},
		{"relative author url", authorCase, "postAuthor.url"},
		{"unknown content type", unknownType, "postContents.type"},
		{"contact without value", emptyEmail, "postContents.url"},
		{"link item with both fields", bothLinkFields, "postContents.url"},
		{"link item with neither field", neitherLinkField, "postContents.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Upsert(ctx, []linkedin.Candidate{tt.cand})
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestListOrdersMostRecentFirst(t *testing.T) {
	s := newTestPostStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, []linkedin.Candidate{candidate("1")})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.Upsert(ctx, []linkedin.Candidate{candidate("2"), candidate("3")})
	require.NoError(t, err)

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	// Second batch first; within a batch the shared timestamp falls back to
	// the id tiebreak.
	assert.Equal(t, "3", records[0].PostID)
	assert.Equal(t, "2", records[1].PostID)
	assert.Equal(t, "1", records[2].PostID)
}

func TestGetByIDsSkipsUnknown(t *testing.T) {
	s := newTestPostStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, []linkedin.Candidate{candidate("1"), candidate("2")})
	require.NoError(t, err)

	records, err := s.GetByIDs(ctx, []string{"2", "missing"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2", records[0].PostID)
}

func TestDeleteByIDs(t *testing.T) {
	s := newTestPostStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, []linkedin.Candidate{candidate("1"), candidate("2")})
	require.NoError(t, err)
	require.NoError(t, s.DeleteByIDs(ctx, []string{"1", "missing"}))

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2", records[0].PostID)
}

func TestDeleteAllKeepsLifetimeCounter(t *testing.T) {
	s := newTestPostStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, []linkedin.Candidate{candidate("1"), candidate("2")})
	require.NoError(t, err)
	require.NoError(t, s.DeleteAll(ctx))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	lifetime, err := s.LifetimeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), lifetime)

	// New scrapes keep advancing it.
	_, err = s.Upsert(ctx, []linkedin.Candidate{candidate("3")})
	require.NoError(t, err)
	lifetime, err = s.LifetimeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), lifetime)
}

func TestWatchDeliversSnapshots(t *testing.T) {
	s := newTestPostStore(t)
	ctx := context.Background()

	type change struct{ newIDs, oldIDs []string }
	var changes []change
	unwatch := s.Watch(func(newRecords, oldRecords []linkedin.PostRecord) {
		changes = append(changes, change{recordIDs(newRecords), recordIDs(oldRecords)})
	})

	_, err := s.Upsert(ctx, []linkedin.Candidate{candidate("1")})
	require.NoError(t, err)
	require.NoError(t, s.DeleteAll(ctx))

	require.Len(t, changes, 2)
	assert.Equal(t, []string{"1"}, changes[0].newIDs)
	assert.Empty(t, changes[0].oldIDs)
	assert.Empty(t, changes[1].newIDs)
	assert.Equal(t, []string{"1"}, changes[1].oldIDs)

	// Session marker writes are not post collection changes.
	require.NoError(t, s.SetActiveSession(ctx, "session-a"))
	assert.Len(t, changes, 2)

	unwatch()
	_, err = s.Upsert(ctx, []linkedin.Candidate{candidate("2")})
	require.NoError(t, err)
	assert.Len(t, changes, 2)
}

func recordIDs(records []linkedin.PostRecord) []string {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.PostID)
	}
	return ids
}

func TestSessionMarkers(t *testing.T) {
	s := newTestPostStore(t)
	ctx := context.Background()

	id, err := s.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, s.SetActiveSession(ctx, "session-a"))
	require.NoError(t, s.SetRunningSession(ctx, "session-a"))

	id, err = s.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "session-a", id)
	id, err = s.RunningSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "session-a", id)

	require.NoError(t, s.SetRunningSession(ctx, ""))
	id, err = s.RunningSession(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
}
