package identity

import (
	"context"

	"github.com/pkg/errors"
	"github.com/slack-go/slack"
)

// userAPI is the slice of the Slack client identity resolution needs.
type userAPI interface {
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
}

// SlackIdentitySource resolves user ids through users.info.
type SlackIdentitySource struct {
	api userAPI
}

func NewSlackIdentitySource(api userAPI) *SlackIdentitySource {
	return &SlackIdentitySource{api: api}
}

func NewSlackIdentitySourceFromToken(token string) *SlackIdentitySource {
	return NewSlackIdentitySource(slack.New(token))
}

// Resolve prefers the profile display name, falling back to real name and
// then the account name. Callers degrade to the deterministic placeholder
// when this errors or yields an empty string.
func (s *SlackIdentitySource) Resolve(ctx context.Context, authorId string) (string, error) {
	user, err := s.api.GetUserInfoContext(ctx, authorId)
	if err != nil {
		return "", errors.Wrap(err, "users.info failed for "+authorId)
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName, nil
	}
	if user.RealName != "" {
		return user.RealName, nil
	}
	return user.Name, nil
}
