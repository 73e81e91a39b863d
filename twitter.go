package webauth

// Twitter API defaults. ProfileUrl is overridable for tests.
const (
	twitterRequestTokenUrl = "https://api.twitter.com/oauth/request_token"
	twitterAuthorizeUrl    = "https://api.twitter.com/oauth/authorize"
	twitterAccessTokenUrl  = "https://api.twitter.com/oauth/access_token"
	twitterProfileUrl      = "https://api.twitter.com/1.1/account/verify_credentials.json"
)

// TwitterConfig configures NewTwitterProvider. Zero-value endpoint fields
// fall back to the public Twitter API.
type TwitterConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	CallbackUrl    string
	RedirectUrl    string
	ProfileUrl     string

	RequestTokenUrl string
	AuthorizeUrl    string
	AccessTokenUrl  string

	Store   UserAccountStore
	Gateway HTTPGateway
}

// NewTwitterProvider builds the Twitter specialization: the generic OAuth1.0a
// flow plus a profile load from verify_credentials that supplies the
// provider-scoped user id and display name.
func NewTwitterProvider(cfg TwitterConfig) *OAuthProvider {
	profileUrl := cfg.ProfileUrl
	if profileUrl == "" {
		profileUrl = twitterProfileUrl
	}
	p := &OAuthProvider{
		Provider:        "twitter",
		ConsumerKey:     cfg.ConsumerKey,
		ConsumerSecret:  cfg.ConsumerSecret,
		CallbackUrl:     cfg.CallbackUrl,
		RedirectUrl:     cfg.RedirectUrl,
		RequestTokenUrl: defaultString(cfg.RequestTokenUrl, twitterRequestTokenUrl),
		AuthorizeUrl:    defaultString(cfg.AuthorizeUrl, twitterAuthorizeUrl),
		AccessTokenUrl:  defaultString(cfg.AccessTokenUrl, twitterAccessTokenUrl),
		Store:           cfg.Store,
		Gateway:         cfg.Gateway,
	}
	p.LoadUserProfile = func(p *OAuthProvider, tokens *OAuthTokens, s *Session) error {
		var profile struct {
			IdStr      string `json:"id_str"`
			ScreenName string `json:"screen_name"`
			Name       string `json:"name"`
		}
		// verify_credentials requires a signed request.
		if err := fetchJSON(p.SignedClient(tokens), profileUrl, &profile); err != nil {
			return err
		}
		tokens.UserId = profile.IdStr
		tokens.UserName = profile.ScreenName
		tokens.DisplayName = profile.Name
		fillString(&s.UserName, profile.ScreenName)
		fillString(&s.DisplayName, profile.Name)
		return nil
	}
	return p
}

func defaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
