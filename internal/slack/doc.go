// Package slack provides the Slack Web API calls the bot manager needs:
// auth.test to turn a bot token into a team id, and rtm.connect to obtain
// a real-time websocket URL.
//
// Endpoint:
//   - https://slack.com/api/<method>
//
// Tokens are passed per call, so one Client serves every team.
package slack
