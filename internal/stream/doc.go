// Package stream implements the streaming feed client.
//
// The client:
//   - Owns one logical WebSocket connection to a push-based price source
//   - Filters inbound ticker frames to a configured watch list
//   - Strips the source quote suffix to produce canonical symbols
//   - Reconnects with linear backoff (base delay × attempt) up to an
//     attempt ceiling, after which it stops until Connect is called again
package stream
