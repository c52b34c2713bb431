// Package gateway wraps the Messaging API calls the bot makes.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Profile is the subset of a LINE user profile the bot keeps.
type Profile struct {
	DisplayName string
	PictureURL  string
}

// Client talks to the Messaging API and the content endpoint.
type Client struct {
	api  *messaging_api.MessagingApiAPI
	blob *messaging_api.MessagingApiBlobAPI
}

// Options configures a Client.
type Options struct {
	ChannelAccessToken string
	HTTPClient         *http.Client
	// APIEndpoint overrides https://api.line.me, used by tests.
	APIEndpoint string
	// DataEndpoint overrides https://api-data.line.me.
	DataEndpoint string
}

// New builds a Client.
func New(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.ChannelAccessToken)
	if token == "" {
		return nil, fmt.Errorf("gateway: empty channel access token")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	apiOpts := []messaging_api.MessagingApiAPIOption{messaging_api.WithHTTPClient(hc)}
	if ep := strings.TrimSpace(opts.APIEndpoint); ep != "" {
		apiOpts = append(apiOpts, messaging_api.WithEndpoint(ep))
	}
	api, err := messaging_api.NewMessagingApiAPI(token, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("gateway: init messaging api: %w", err)
	}
	blobOpts := []messaging_api.MessagingApiBlobAPIOption{messaging_api.WithBlobHTTPClient(hc)}
	if ep := strings.TrimSpace(opts.DataEndpoint); ep != "" {
		blobOpts = append(blobOpts, messaging_api.WithBlobEndpoint(ep))
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(token, blobOpts...)
	if err != nil {
		return nil, fmt.Errorf("gateway: init blob api: %w", err)
	}
	return &Client{api: api, blob: blob}, nil
}

// scoped returns a copy of the SDK client bound to ctx; WithContext mutates its receiver.
func (c *Client) scoped(ctx context.Context) *messaging_api.MessagingApiAPI {
	api := *c.api
	return api.WithContext(ctx)
}

func (c *Client) scopedBlob(ctx context.Context) *messaging_api.MessagingApiBlobAPI {
	blob := *c.blob
	return blob.WithContext(ctx)
}

// Reply answers an event through its single-use reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, msgs []messaging_api.MessageInterface) error {
	if replyToken == "" {
		return fmt.Errorf("gateway: reply: empty reply token")
	}
	if _, err := c.scoped(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   msgs,
	}); err != nil {
		return fmt.Errorf("gateway: reply: %w", err)
	}
	return nil
}

// Push sends messages to a user without a reply token.
func (c *Client) Push(ctx context.Context, to string, msgs []messaging_api.MessageInterface) error {
	if _, err := c.scoped(ctx).PushMessage(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: msgs,
	}, ""); err != nil {
		return fmt.Errorf("gateway: push: %w", err)
	}
	return nil
}

// Profile fetches the display name and picture of a user.
func (c *Client) Profile(ctx context.Context, userID string) (Profile, error) {
	resp, err := c.scoped(ctx).GetProfile(userID)
	if err != nil {
		return Profile{}, fmt.Errorf("gateway: profile: %w", err)
	}
	return Profile{DisplayName: resp.DisplayName, PictureURL: resp.PictureUrl}, nil
}

// LinkRichMenu attaches a rich menu to a user.
func (c *Client) LinkRichMenu(ctx context.Context, userID, richMenuID string) error {
	if _, err := c.scoped(ctx).LinkRichMenuIdToUser(userID, richMenuID); err != nil {
		return fmt.Errorf("gateway: link rich menu: %w", err)
	}
	return nil
}
