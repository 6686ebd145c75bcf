// Package panel serves the bench page, a small browser UI for watching
// attached boards and their key matrices over the API WebSocket.
//
// The page is embedded into the binary. Handler can serve a directory
// instead, so the page can be edited without rebuilding. Unknown paths fall
// back to index.html.
package panel
