package providers

import (
	"context"
	"net/url"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
)

var googleEndpoints = Endpoints{
	Auth:     "https://accounts.google.com/o/oauth2/v2/auth",
	Token:    "https://oauth2.googleapis.com/token",
	UserInfo: "https://openidconnect.googleapis.com/v1/userinfo",
}

// Google resuelve el perfil con el endpoint userinfo de OIDC.
type Google struct {
	c *oauthClient
}

var _ auth.OAuthProvider = (*Google)(nil)

func NewGoogle(stores store.Resolver, configs auth.ConfigSource, opts ...OAuthOption) *Google {
	return &Google{c: newOAuthClient(domain.ProviderGoogle, "GOOGLE", []string{"openid", "email", "profile"}, googleEndpoints, stores, configs, opts)}
}

func (g *Google) ID() string { return domain.ProviderGoogle }

func (g *Google) AuthURL(ctx context.Context, tenantID, state string) (string, error) {
	return g.c.authURL(ctx, tenantID, state, url.Values{"prompt": {"select_account"}})
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (g *Google) SignIn(ctx context.Context, creds auth.Credentials) (*domain.User, error) {
	return g.c.signIn(ctx, creds, func(ctx context.Context, at string) (*Profile, error) {
		var ui googleUserInfo
		if err := g.c.getJSON(ctx, g.c.endpoints.UserInfo, at, &ui); err != nil {
			return nil, err
		}
		return &Profile{
			ProviderUserID: ui.Sub,
			Email:          ui.Email,
			EmailVerified:  ui.EmailVerified,
			Name:           ui.Name,
			AvatarURL:      ui.Picture,
		}, nil
	})
}
