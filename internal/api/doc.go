// Package api implements the HTTP REST API and WebSocket stream for boardd.
//
// This package provides:
//   - REST endpoints to list boards, read their history and change keymaps
//     and LEDs through the daemon client
//   - A WebSocket hub broadcasting board added/removed events and key matrix
//     changes
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support
//
// # Architecture
//
// The server sits next to the MQTT bridge. Both feed commands into the same
// daemon client, so a slider dragged in a web UI and a retained MQTT command
// for the same LED debounce against each other. Board events and matrix
// changes reach the server through HandleEvent and HandleMatrix, which boardd
// fans out alongside the bridge.
//
// # Security
//
// Every route except /api/v1/health requires a bearer token issued with
// `boardd --issue-token`. Reads need board:read, keymap and LED changes need
// board:configure, and refresh or poll rate changes need system:admin.
// WebSocket connections use single-use tickets to keep tokens out of URLs.
package api
