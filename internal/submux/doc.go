// Package submux turns N independent consumer subscriptions into at
// most one shared polling loop per distinct symbol set.
//
// Identity is the canonical sorted symbol set, so subscribe(["BTC","ETH"])
// and subscribe(["ETH","BTC"]) share one loop. Subscribers are
// ref-counted; the loop is torn down when the last one unsubscribes.
// Every new subscriber receives one immediate delivery before any
// scheduled tick reaches it.
package submux
