package gh

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v61/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	userAgent      = "sygnalista-server"
	defaultAPIBase = "https://api.github.com/"
)

// Secrets holds the GitHub credential material. Either Token (static
// personal access token) or the AppID/PrivateKey/InstallID triple must be
// set; the private key may be inline PEM or a file path.
type Secrets struct {
	Token          string `json:"ghToken" paramName:"SYG_GH_TOKEN,secret"`
	AppID          string `json:"ghAppID" paramName:"SYG_GH_APP_ID,secret"`
	PrivateKey     string `json:"ghPrivateKey" paramName:"SYG_GH_APP_KEY,secret"` // pem encoded rsa key
	PrivateKeyFile string `json:"ghPrivateKeyFile" paramName:"SYG_GH_APP_KEY_FILE"`
	InstallID      int64  `json:"ghInstallID" paramName:"SYG_GH_INSTALL_ID,secret"`
}

// Repo is an owner/name pair.
type Repo struct {
	Owner string `json:"owner"`
	Name  string `json:"repo"`
}

func (r Repo) String() string { return r.Owner + "/" + r.Name }

// ParseRepoRef splits an "owner/repo" reference into exactly two non-empty
// segments.
func ParseRepoRef(ref string) (Repo, error) {
	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Repo{}, errors.Errorf("invalid repository reference %q (expected owner/repo)", ref)
	}
	return Repo{Owner: parts[0], Name: parts[1]}, nil
}

// Service is the GitHub subservice: it owns the credential provider and
// builds authenticated API clients from it.
type Service struct {
	Creds *CredentialProvider

	baseURL string
	log     *log.Logger
}

func New(shh Secrets, logger *log.Logger) *Service {
	return &Service{
		Creds:   NewCredentialProvider(shh, defaultAPIBase),
		baseURL: defaultAPIBase,
		log:     logger,
	}
}

// WithBaseURL redirects all API traffic, including token exchange, to
// base. Used by tests.
func (s *Service) WithBaseURL(base string) *Service {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	s.baseURL = base
	s.Creds.baseURL = base
	return s
}

// NewClient acquires a credential and returns a typed API client bound to
// it. Acquiring per request keeps the token at most one cache margin from
// expiry without the client holding refresh logic.
func (s *Service) NewClient(ctx context.Context) (*Client, error) {
	cred, err := s.Creds.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	gc, err := s.newGitHubClient(ctx, cred)
	if err != nil {
		return nil, err
	}
	return &Client{gh: gc, log: s.log}, nil
}

func (s *Service) newGitHubClient(ctx context.Context, cred Credential) (*github.Client, error) {
	var hc *http.Client
	if cred.Scheme == SchemeBearer {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.Token}))
	} else {
		// Legacy "token" authorization scheme for static tokens.
		hc = &http.Client{Transport: &authTransport{scheme: cred.Scheme, token: cred.Token}}
	}
	return newAPIClient(hc, s.baseURL)
}

func newAPIClient(hc *http.Client, base string) (*github.Client, error) {
	gc := github.NewClient(hc)
	gc.UserAgent = userAgent
	u, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrap(err, "invalid API base URL")
	}
	gc.BaseURL = u
	return gc, nil
}

// authTransport stamps a fixed Authorization header onto every request.
type authTransport struct {
	scheme string
	token  string
	base   http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", t.scheme+" "+t.token)
	rt := t.base
	if rt == nil {
		rt = http.DefaultTransport
	}
	return rt.RoundTrip(clone)
}
