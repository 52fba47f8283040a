// Package snapshot persists the merged ticker table for cold starts.
//
// The snapshot is written best-effort after each merge and read exactly
// once, when the store initializes. A missing or unreadable snapshot is
// never fatal; the store simply starts empty.
package snapshot
