package gh

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v61/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	// SchemeBearer is used for app installation tokens and signed
	// assertions; SchemeToken is the legacy scheme for static tokens.
	SchemeBearer = "Bearer"
	SchemeToken  = "token"

	assertionSkew = 30 * time.Second
	assertionTTL  = 9 * time.Minute

	// Cached installation tokens are reused only while at least this much
	// lifetime remains.
	tokenReuseMargin = time.Minute
)

// ErrNoCredentials signals that neither a static token nor app credential
// material is configured. The orchestrator treats it as a configuration
// error, not a client error.
var ErrNoCredentials = errors.New("missing GitHub auth (static token or app id/private key/installation id)")

// Credential is an acquired token plus the authorization scheme it must be
// presented with.
type Credential struct {
	Token  string
	Scheme string
}

type installationToken struct {
	token          string
	expiresAt      time.Time
	installationID int64
}

// CredentialProvider resolves the configured auth mode. In app mode it
// signs a short-lived assertion, exchanges it for an installation token
// and caches the result process-wide.
//
// The cache is a lock-free pointer swap: concurrent refreshes may race,
// but every racing write holds a valid token, so the cost is at worst a
// redundant exchange call. A failed exchange leaves the previous entry
// untouched.
type CredentialProvider struct {
	shh     Secrets
	baseURL string

	cached atomic.Pointer[installationToken]

	now func() time.Time
}

func NewCredentialProvider(shh Secrets, baseURL string) *CredentialProvider {
	return &CredentialProvider{
		shh:     shh,
		baseURL: baseURL,
		now:     time.Now,
	}
}

func (p *CredentialProvider) appModeConfigured() bool {
	return p.shh.AppID != "" && p.shh.InstallID != 0 &&
		(p.shh.PrivateKey != "" || p.shh.PrivateKeyFile != "")
}

// Acquire returns a credential for the configured mode, minting and
// caching an installation token in app mode.
func (p *CredentialProvider) Acquire(ctx context.Context) (Credential, error) {
	if p.shh.Token != "" {
		return Credential{Token: p.shh.Token, Scheme: SchemeToken}, nil
	}
	if !p.appModeConfigured() {
		return Credential{}, ErrNoCredentials
	}

	if tok := p.cached.Load(); tok != nil &&
		tok.installationID == p.shh.InstallID &&
		p.now().Before(tok.expiresAt.Add(-tokenReuseMargin)) {
		return Credential{Token: tok.token, Scheme: SchemeBearer}, nil
	}

	minted, err := p.exchange(ctx)
	if err != nil {
		return Credential{}, err
	}
	p.cached.Store(minted)
	return Credential{Token: minted.token, Scheme: SchemeBearer}, nil
}

// signAssertion builds the time-boxed RS256 assertion that identifies the
// GitHub App: issued-at backdated by the skew allowance, nine minute
// expiry, issuer = app id.
func (p *CredentialProvider) signAssertion() (string, error) {
	pem := []byte(p.shh.PrivateKey)
	if p.shh.PrivateKey == "" {
		b, err := os.ReadFile(p.shh.PrivateKeyFile)
		if err != nil {
			return "", errors.Wrap(err, "read app private key file")
		}
		pem = b
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return "", errors.Wrap(err, "parse app private key")
	}

	now := p.now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-assertionSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
		Issuer:    p.shh.AppID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", errors.Wrap(err, "sign app assertion")
	}
	return signed, nil
}

func (p *CredentialProvider) exchange(ctx context.Context) (*installationToken, error) {
	assertion, err := p.signAssertion()
	if err != nil {
		return nil, err
	}

	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: assertion}))
	gc, err := newAPIClient(hc, p.baseURL)
	if err != nil {
		return nil, err
	}

	tok, _, err := gc.Apps.CreateInstallationToken(ctx, p.shh.InstallID, &github.InstallationTokenOptions{})
	if err != nil {
		// Surfaces the upstream status and body; key material never
		// appears in API errors.
		return nil, errors.Wrap(err, "create installation token")
	}
	return &installationToken{
		token:          tok.GetToken(),
		expiresAt:      tok.GetExpiresAt().Time,
		installationID: p.shh.InstallID,
	}, nil
}
