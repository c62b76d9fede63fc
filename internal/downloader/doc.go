// Package downloader fetches image addresses and writes each one to the
// output directory at most once.
//
// The local file name is the last segment of the URL path with any query or
// fragment removed, sanitized for common filesystems. Before any network
// request the file's existence is checked: an existing file counts as a
// success and is never re-downloaded or overwritten. Responses whose
// Content-Type is not an image are skipped and leave no file behind.
//
// Content is streamed to a temporary file in the output directory and
// renamed into place on success, so an interrupted transfer never leaves a
// truncated image under the final name.
package downloader
