package slack

// Response is the envelope every Web API method returns.
type Response struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// AuthTestResponse from auth.test
type AuthTestResponse struct {
	Response
	URL    string `json:"url"`
	Team   string `json:"team"`
	User   string `json:"user"`
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
	BotID  string `json:"bot_id,omitempty"`
}

// RTMConnectResponse from rtm.connect
type RTMConnectResponse struct {
	Response
	URL  string `json:"url"`
	Team struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Domain string `json:"domain"`
	} `json:"team"`
	Self struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"self"`
}

// authErrors are error codes meaning the token itself is unusable.
var authErrors = map[string]struct{}{
	"not_authed":             {},
	"invalid_auth":           {},
	"account_inactive":       {},
	"token_revoked":          {},
	"token_expired":          {},
	"no_permission":          {},
	"missing_scope":          {},
	"not_allowed_token_type": {},
}
