// Package progress defines the observational sink the crawler and downloader
// report to, plus a terminal renderer and a no-op implementation.
//
// Sinks never influence control flow. Implementations must be safe for
// concurrent use because downloads run in parallel.
package progress
