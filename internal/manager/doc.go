// Package manager ties the token registry, the command channel and the
// connection supervisor together.
//
// Producers call the batch operations (AddTokens, RemoveTokens,
// UpdateTokens, CheckTokens, ClearTokens), which only touch storage. The
// monitor process calls Monitor, which runs a reconciliation pass every
// check interval and is the only caller that opens or closes connections.
//
// Running two monitors against one store is unsupported: both would open a
// connection per team.
package manager
