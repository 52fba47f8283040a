// Package store is the merge point for all feed data.
//
// Feed clients write batches through Update; UI-level consumers read
// through GetTicker/GetAllTickers and can register change callbacks.
// The merge rule is last-writer-wins per symbol by call order, not by
// record timestamp. The merged table is persisted best-effort after
// each update and reloaded once on Initialize.
package store
