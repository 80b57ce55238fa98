package store

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// GitHubStore implements ArchiveStore on the GitHub contents API. The blob
// SHA of a file doubles as its version token: CreateFile with no SHA fails
// when the path exists, UpdateFile with a stale SHA fails with 409/422.
type GitHubStore struct {
	client *github.Client
}

func NewGitHubStore(client *github.Client) *GitHubStore {
	return &GitHubStore{client: client}
}

// NewGitHubStoreFromToken builds a store with an oauth2 token client. The
// client is constructed once and injected, never a package global.
func NewGitHubStoreFromToken(ctx context.Context, token string) *GitHubStore {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return NewGitHubStore(github.NewClient(oauth2.NewClient(ctx, ts)))
}

// splitRepo parses "owner/name".
func splitRepo(repo string) (string, string, error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("destination repo must be in owner/name form: " + repo)
	}
	return parts[0], parts[1], nil
}

func (s *GitHubStore) ReadFile(ctx context.Context, repo, branch, path string) (*File, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	content, _, resp, err := s.client.Repositories.GetContents(ctx, owner, name, path, &github.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrFileNotFound
		}
		return nil, errors.Wrap(err, "fail to read archive file "+path)
	}
	if content == nil {
		// The path resolved to a directory listing.
		return nil, errors.New("archive path is a directory: " + path)
	}

	body, err := content.GetContent()
	if err != nil {
		return nil, errors.Wrap(err, "fail to decode archive file "+path)
	}
	return &File{Body: body, VersionToken: content.GetSHA()}, nil
}

func (s *GitHubStore) WriteFile(ctx context.Context, repo, branch, path, body, expectedToken string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(fmt.Sprintf("archive: update %s", path)),
		Content: []byte(body),
		Branch:  github.String(branch),
	}

	var result *github.RepositoryContentResponse
	var resp *github.Response
	if expectedToken == "" {
		result, resp, err = s.client.Repositories.CreateFile(ctx, owner, name, path, opts)
	} else {
		opts.SHA = github.String(expectedToken)
		result, resp, err = s.client.Repositories.UpdateFile(ctx, owner, name, path, opts)
	}

	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusConflict, http.StatusUnprocessableEntity:
				// Stale SHA or the path was created between our read and this
				// write. Re-read and retry.
				return "", ErrWriteConflict
			}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return "", errors.Wrap(err, "fail to write archive file "+path)
			}
		}
		// No HTTP status or a 5xx: the commit may have landed server side
		// while the confirmation was lost.
		return "", &UnknownOutcomeError{Cause: err}
	}

	if result == nil || result.Content == nil || result.Content.SHA == nil {
		return "", &UnknownOutcomeError{Cause: errors.New("write response missing content SHA")}
	}
	return result.Content.GetSHA(), nil
}
