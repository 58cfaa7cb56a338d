// Package connection implements the live side of the bot manager.
//
// It contains:
//   - a websocket client for one Slack RTM session (ping heartbeat,
//     stale detection, status tracking)
//   - RTMDriver, which turns a bot token into an open client
//   - Supervisor, the in-process map of team id -> live connection
//
// Reconnecting after a dropped socket is not done here; the reconciliation
// pass notices the dead status and reopens through the Supervisor.
package connection
