/*
Package eventclient implements a client for the real-time event channel of a
Trellis node. The channel is a single multiplexed WebSocket connection over
which the node pushes block finalization notices, watched-path value changes
and transaction state transitions to interested subscribers.

The package is structured after its responsibilities: [Channel] owns the
transport, the handshake and heartbeat clocks and the wire encoding;
[Registry] owns the live filters and subscriptions and routes inbound events
to callbacks; [Manager] ties the two together behind a small API, which is
what most users want:

	c, err := rpcclient.New("http://localhost:20332", rpcclient.Options{})
	// ...
	m := eventclient.NewManager(c, eventclient.ChannelOptions{Logger: log})
	err = m.Connect(ctx, func(cause error) {
		// connection is gone together with all subscriptions
	})
	// ...
	id, err := m.SubscribeBlockFinalized(nil, func(b *eventrpc.BlockFinalized) {
		fmt.Println(b.BlockNumber, b.BlockHash)
	}, nil, nil)
	// ...
	_, err = m.Unsubscribe(id)
	m.Disconnect()

Liveness is server-driven: the node PINGs periodically and the client answers
with PONGs, never pinging on its own. When no PING arrives within the
heartbeat interval the connection is declared dead and torn down. Any
teardown, local or remote, invokes the disconnect handler passed to Connect
exactly once and invalidates every subscription on the server side, so
callers are expected to resubscribe after reconnecting.

Subscription callbacks are invoked from the connection's reader routine one
at a time. They're free to call back into the Manager, but a slow callback
delays all subsequent deliveries on the connection.
*/
package eventclient
