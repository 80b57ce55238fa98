package store

import (
	"context"
	"fmt"
	"sync"
)

// FakeArchiveStore is an in-memory ArchiveStore for tests. Faults can be
// scripted per write attempt to exercise the writer's conflict and
// unknown-outcome paths.
type FakeArchiveStore struct {
	mu      sync.Mutex
	files   map[string]*File
	version int

	// WriteFaults is consumed one entry per WriteFile call. A nil entry
	// means the write proceeds normally. A non-nil error is returned as is,
	// except UnknownOutcomeError entries with CommitAnyway set, which commit
	// the write server side and then report the unknown outcome.
	WriteFaults []*WriteFault
	WriteCalls  int
	ReadCalls   int
}

type WriteFault struct {
	Err          error
	CommitAnyway bool
}

func NewFakeArchiveStore() *FakeArchiveStore {
	return &FakeArchiveStore{files: map[string]*File{}}
}

func fileKey(repo, branch, path string) string {
	return repo + "|" + branch + "|" + path
}

func (s *FakeArchiveStore) ReadFile(ctx context.Context, repo, branch, path string) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReadCalls++

	file, ok := s.files[fileKey(repo, branch, path)]
	if !ok {
		return nil, ErrFileNotFound
	}
	copied := *file
	return &copied, nil
}

func (s *FakeArchiveStore) WriteFile(ctx context.Context, repo, branch, path, body, expectedToken string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WriteCalls++

	var fault *WriteFault
	if len(s.WriteFaults) > 0 {
		fault = s.WriteFaults[0]
		s.WriteFaults = s.WriteFaults[1:]
	}
	if fault != nil && fault.Err != nil && !fault.CommitAnyway {
		return "", fault.Err
	}

	key := fileKey(repo, branch, path)
	current, exists := s.files[key]
	if expectedToken == "" {
		if exists {
			return "", ErrWriteConflict
		}
	} else {
		if !exists || current.VersionToken != expectedToken {
			return "", ErrWriteConflict
		}
	}

	s.version++
	token := fmt.Sprintf("v%d", s.version)
	s.files[key] = &File{Body: body, VersionToken: token}

	if fault != nil && fault.Err != nil {
		// Committed server side, confirmation lost.
		return "", fault.Err
	}
	return token, nil
}

// Seed installs a file without going through the writer, returning its
// version token.
func (s *FakeArchiveStore) Seed(repo, branch, path, body string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	token := fmt.Sprintf("v%d", s.version)
	s.files[fileKey(repo, branch, path)] = &File{Body: body, VersionToken: token}
	return token
}

// Current returns the committed file state, or nil.
func (s *FakeArchiveStore) Current(repo, branch, path string) *File {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[fileKey(repo, branch, path)]
	if !ok {
		return nil
	}
	copied := *file
	return &copied
}
