// Package realtime multiplexes live-update subscriptions onto physical
// realtime channels.
//
// A Multiplexer keeps exactly one channel per topic key and fans every
// received change event out to the topic's listeners. Listener counting,
// grace-period teardown and error-driven resubscription are owned here:
//
//	Unsubscribed → Subscribing → Subscribed
//	Subscribed → Erroring → (fixed backoff) → Subscribing
//
// When the last listener leaves, the channel is kept for a grace period and
// closed only if nobody re-subscribed in the meantime.
//
// Event delivery goes through a Dispatcher so a slow or panicking listener
// never runs on the transport's goroutine and never blocks its siblings.
// Transport implementations deliver events and status changes through a
// Sink; WebsocketTransport is the gorilla/websocket implementation.
package realtime
