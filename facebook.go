package webauth

// FacebookConfig configures NewFacebookProvider.
type FacebookConfig struct {
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

const facebookProfileUrl = "https://graph.facebook.com/me?fields=id,name,first_name,last_name,email&access_token="

// NewFacebookProvider builds the Facebook specialization. The graph profile
// endpoint takes the access token as a query parameter, so the fetch goes
// through the plain gateway rather than a signed client.
func NewFacebookProvider(cfg FacebookConfig) *OAuthProvider {
	profileUrl := cfg.ProfileUrl
	if profileUrl == "" {
		profileUrl = facebookProfileUrl
	}
	p := &OAuthProvider{
		Provider:        "facebook",
		ConsumerKey:     cfg.ConsumerKey,
		ConsumerSecret:  cfg.ConsumerSecret,
		CallbackUrl:     cfg.CallbackUrl,
		RedirectUrl:     cfg.RedirectUrl,
		RequestTokenUrl: cfg.RequestTokenUrl,
		AuthorizeUrl:    cfg.AuthorizeUrl,
		AccessTokenUrl:  cfg.AccessTokenUrl,
		Store:           cfg.Store,
		Gateway:         cfg.Gateway,
	}
	p.LoadUserProfile = func(p *OAuthProvider, tokens *OAuthTokens, s *Session) error {
		var profile struct {
			Id        string `json:"id"`
			Name      string `json:"name"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			Email     string `json:"email"`
		}
		if err := fetchJSON(p.gateway(), profileUrl+tokens.AccessToken, &profile); err != nil {
			return err
		}
		tokens.UserId = profile.Id
		tokens.DisplayName = profile.Name
		tokens.FirstName = profile.FirstName
		tokens.LastName = profile.LastName
		tokens.Email = profile.Email
		fillString(&s.DisplayName, profile.Name)
		fillString(&s.FirstName, profile.FirstName)
		fillString(&s.LastName, profile.LastName)
		fillString(&s.Email, profile.Email)
		return nil
	}
	return p
}
