// Package model defines the shared data types used across the feed layer.
//
// Conventions:
//   - Prices and rates: float64
//   - Timestamps: int64 milliseconds since Unix epoch
//   - Symbols: canonical form (uppercase, source suffixes stripped)
package model
