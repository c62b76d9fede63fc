// Package fetch provides the HTTP capability used by the crawler and the
// downloader.
//
// A Client sends a desktop-browser User-Agent with every request, keeps a
// cookie jar for the run, injects per-site headers and cookies, and can route
// all traffic through a SOCKS5 proxy (for example a local Tor daemon).
//
// Two request styles are offered:
//   - GetPage reads a whole page body under a total timeout. It is used for HTML.
//   - Get returns a streaming response whose body enforces an idle-read
//     timeout: the transfer is cancelled only when no data arrives for the
//     configured duration. It is used for images, which may be large.
//
// Both return a *StatusError for HTTP status codes >= 400.
package fetch
