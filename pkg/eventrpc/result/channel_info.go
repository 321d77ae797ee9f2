package result

// ChannelInfo is a result of the `geteventchannel` RPC call: the address of
// the node's real-time event channel and the limits the node applies to it.
type ChannelInfo struct {
	// URL is the WebSocket endpoint serving the event channel. An empty URL
	// means the node has the channel disabled.
	URL string `json:"url"`
	// MaxActiveFilters is the maximum number of filters the node accepts on
	// one connection, zero means no limit.
	MaxActiveFilters int `json:"max_active_filters,omitempty"`
}
