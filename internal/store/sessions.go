package store

import "context"

// Session markers: which scrape session currently owns a ready feed page and
// which one is actively running. Control clients read these to decide what
// controls to show. Empty string means none.

func (s *PostStore) SetActiveSession(ctx context.Context, id string) error {
	if id == "" {
		return s.kv.Delete(ctx, keyActiveSession)
	}
	return s.kv.Set(ctx, keyActiveSession, id)
}

func (s *PostStore) ActiveSession(ctx context.Context) (string, error) {
	id, _, err := s.kv.Get(ctx, keyActiveSession)
	return id, err
}

func (s *PostStore) SetRunningSession(ctx context.Context, id string) error {
	if id == "" {
		return s.kv.Delete(ctx, keyRunningSession)
	}
	return s.kv.Set(ctx, keyRunningSession, id)
}

func (s *PostStore) RunningSession(ctx context.Context) (string, error) {
	id, _, err := s.kv.Get(ctx, keyRunningSession)
	return id, err
}
