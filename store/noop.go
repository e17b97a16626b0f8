package store

import "context"

// NoopStore stores nothing.
type NoopStore struct {
}

func (s *NoopStore) Open(ctx context.Context) error {
	return nil
}

func (s *NoopStore) Close(ctx context.Context) error {
	return nil
}

func (s *NoopStore) WriteRun(ctx context.Context, r *Run) error {
	return nil
}

func (s *NoopStore) GetRun(ctx context.Context, id string) (*Run, error) {
	return nil, nil
}

func (s *NoopStore) ListRuns(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (s *NoopStore) RemRun(ctx context.Context, id string) error {
	return nil
}
