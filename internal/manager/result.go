package manager

import "fmt"

// Result is the outcome of a batch operation for one token.
type Result struct {
	Token  string
	TeamID string
	Team   string // Team name, set when the token was verified
	Status string // Stored status, set by CheckTokens and Status
	Err    error
}

// OK reports whether the operation succeeded for this token.
func (r Result) OK() bool { return r.Err == nil }

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("Token %s :: %v", redact(r.Token), r.Err)
	}
	if r.Status != "" {
		return fmt.Sprintf("Team %s :: %s", r.TeamID, r.Status)
	}
	return fmt.Sprintf("Team %s :: ok", r.TeamID)
}

// redact keeps only the tail of a token for logs.
func redact(tok string) string {
	const keep = 4
	if len(tok) <= keep {
		return "****"
	}
	return "****" + tok[len(tok)-keep:]
}
