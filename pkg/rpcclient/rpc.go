package rpcclient

import (
	"context"

	"github.com/trellis-network/trellis-go/pkg/eventrpc/result"
)

// GetEventChannel returns the parameters of the server's real-time event
// channel, most importantly the websocket URL to connect to. Servers that
// have the channel disabled return an empty URL. Client satisfies
// eventclient.ChannelResolver via this method, so it can be passed directly
// to eventclient.NewManager.
func (c *Client) GetEventChannel(ctx context.Context) (*result.ChannelInfo, error) {
	var resp = new(result.ChannelInfo)
	if err := c.performRequest(ctx, "geteventchannel", nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
