package slack

import (
	"context"
	"fmt"

	"github.com/rickgao/botmanager/internal/token"
)

// AuthTest checks tok and reports who it belongs to.
func (c *Client) AuthTest(ctx context.Context, tok string) (*AuthTestResponse, error) {
	var resp AuthTestResponse
	if err := c.call(ctx, "auth.test", tok, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify implements token.Verifier using auth.test.
func (c *Client) Verify(ctx context.Context, tok string) (token.Identity, error) {
	resp, err := c.AuthTest(ctx, tok)
	if err != nil {
		return token.Identity{}, err
	}
	if resp.TeamID == "" {
		return token.Identity{}, fmt.Errorf("%w: auth.test returned no team_id", token.ErrInvalidCredential)
	}
	return token.Identity{ID: resp.TeamID, Name: resp.Team}, nil
}
