// Package chat contains the chat-room bot that fronts the music player.
//
// It provides two layers:
//   - Bot: transport independent command handling. Every line is appended
//     to the chat log, cheers (bits) are credited to the tip ledger, and
//     prefixed commands (!play, !stop, !np, !queue, !say, !top, !get, !help)
//     are mapped to player and ledger operations. Handle returns the reply
//     lines.
//   - StartBot: connects to Twitch IRC for TWITCH_CHANNEL, feeds messages to
//     the Bot in arrival order, greets joining users and disconnects when the
//     context is canceled.
//
// Credentials: the IRC client requires a bot username and an OAuth token with
// chat:read/chat:edit scopes.
package chat
