// Package live streams submission verdicts from the push endpoint.
//
// The push endpoint speaks STOMP 1.2 carried over WebSocket messages. [Client] owns the connection
// state machine (Disconnected, Connecting, Connected) and a topic registry that outlives the
// connection: every registered topic is subscribed again after each successful connect.
//
// # Reconnection
//
// An unexpected close schedules reconnect attempts with exponential backoff (see [BackoffDelay]).
// After the configured number of consecutive failures the client gives up and stays disconnected
// until [Client.Connect] is called again.
//
// # Delivery
//
// Each MESSAGE frame is routed by its subscription id to the handler currently registered for the
// topic. Bodies that do not decode into a valid [models.Verdict] are logged with
// [shared.ErrMalformedMessage] and dropped.
//
// # Transport
//
// [Dialer] and [Conn] abstract the transport. [WebSocketDialer] is the production implementation
// using github.com/coder/websocket.
package live
