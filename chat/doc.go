// Package chat supervises the per-platform chat clients.
//
// The Manager owns at most one running client per platform and provides:
//   - Start/Stop/Restart for the full set, driven by the hub's ChatConfig
//     (a config change that touches channel targets triggers Restart).
//   - StartTwitch/StartYouTube with stop-before-start semantics: the prior
//     client is cancelled and awaited before a new one is created, so two
//     clients never race on the same external channel join.
//   - SendMessage routing with de-duplicated echo semantics when a message
//     is broadcast to every platform at once.
//
// Clients implement the Client contract below; their wire-level behavior
// lives in the twitchchat and youtubechat packages.
package chat
