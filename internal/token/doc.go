// Package token owns the desired-state side of the bot manager: which
// team ids should be connected with which token (Registry), and the
// per-team command/status field used for restart requests (Commands).
//
// Both are thin layers over storage.Store and keep no in-process state,
// so any number of producer processes can use them concurrently with a
// monitor running elsewhere.
package token
