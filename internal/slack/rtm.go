package slack

import (
	"context"
	"errors"
)

// RTMConnect starts a real-time session and returns its response.
func (c *Client) RTMConnect(ctx context.Context, tok string) (*RTMConnectResponse, error) {
	var resp RTMConnectResponse
	if err := c.call(ctx, "rtm.connect", tok, nil, &resp); err != nil {
		return nil, err
	}
	if resp.URL == "" {
		return nil, errors.New("slack rtm.connect: empty websocket url")
	}
	return &resp, nil
}

// WebsocketURL returns just the websocket URL for tok.
func (c *Client) WebsocketURL(ctx context.Context, tok string) (string, error) {
	resp, err := c.RTMConnect(ctx, tok)
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}
