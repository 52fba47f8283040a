// Package fxrates implements the polled FX rates feed client.
//
// The client:
//   - Fetches a JSON map of currency→rate at most once per TTL window
//   - Coalesces concurrent fetches (single-flight)
//   - Serves the last good batch when a fetch fails, never evicting it
//   - Derives change/changePercent from the previously observed rate,
//     ignoring whatever deltas the upstream payload might carry
package fxrates
