package providers

import (
	"context"
	"net/url"
	"strconv"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
)

var githubEndpoints = Endpoints{
	Auth:     "https://github.com/login/oauth/authorize",
	Token:    "https://github.com/login/oauth/access_token",
	UserInfo: "https://api.github.com/user",
	Emails:   "https://api.github.com/user/emails",
}

// GitHub no tiene id_token: el perfil sale de /user y, si el email es
// privado, de /user/emails.
type GitHub struct {
	c *oauthClient
}

var _ auth.OAuthProvider = (*GitHub)(nil)

func NewGitHub(stores store.Resolver, configs auth.ConfigSource, opts ...OAuthOption) *GitHub {
	return &GitHub{c: newOAuthClient(domain.ProviderGitHub, "GITHUB", []string{"read:user", "user:email"}, githubEndpoints, stores, configs, opts)}
}

func (g *GitHub) ID() string { return domain.ProviderGitHub }

func (g *GitHub) AuthURL(ctx context.Context, tenantID, state string) (string, error) {
	return g.c.authURL(ctx, tenantID, state, url.Values{"allow_signup": {"true"}})
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GitHub) SignIn(ctx context.Context, creds auth.Credentials) (*domain.User, error) {
	return g.c.signIn(ctx, creds, func(ctx context.Context, at string) (*Profile, error) {
		var gu githubUser
		if err := g.c.getJSON(ctx, g.c.endpoints.UserInfo, at, &gu); err != nil {
			return nil, err
		}
		p := &Profile{
			ProviderUserID: strconv.FormatInt(gu.ID, 10),
			Email:          gu.Email,
			Name:           gu.Name,
			AvatarURL:      gu.AvatarURL,
		}
		if p.Name == "" {
			p.Name = gu.Login
		}

		// el email público de /user no dice si está verificado
		var emails []githubEmail
		if err := g.c.getJSON(ctx, g.c.endpoints.Emails, at, &emails); err != nil {
			if p.Email == "" {
				return nil, err
			}
			return p, nil
		}
		if e := primaryEmail(emails); e != nil {
			p.Email, p.EmailVerified = e.Email, e.Verified
		}
		return p, nil
	})
}

// primaryEmail: primario verificado, si no cualquier verificado, si no el
// primero.
func primaryEmail(emails []githubEmail) *githubEmail {
	for i := range emails {
		if emails[i].Primary && emails[i].Verified {
			return &emails[i]
		}
	}
	for i := range emails {
		if emails[i].Verified {
			return &emails[i]
		}
	}
	if len(emails) > 0 {
		return &emails[0]
	}
	return nil
}
