// Package sse provides server-to-client event streaming over
// long-lived push channels (Server-Sent Events).
//
// It unifies three transport shapes behind one Connection contract
// (net/http HTTP/1.x, HTTP/2, and gin), runs the per-client session
// lifecycle with heartbeats and resumption-id tracking, and fans
// events out to many sessions through a broadcast Channel.
//
// # Architecture
//
//   - Connection: transport adapter (request metadata, head, chunks)
//   - Buffer: frame accumulator with serializer/sanitizer hooks
//   - Session: per-client state machine and push/stream/batch surface
//   - Channel: session registry with filtered broadcast and
//     automatic cleanup on disconnect
//
// # Usage
//
//	ch := sse.NewChannel[any, any]()
//	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
//	    _ = sse.ServeSSE(ch, w, r)
//	})
//	ch.Broadcast("tick", sse.WithBroadcastType[any]("update"))
package sse
