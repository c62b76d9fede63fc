// Package database provides SQLite-based run history for imagecrawl.
//
// Every crawl-and-download run is stored with its visited pages and the
// outcome of every image address, so earlier runs can be listed and
// inspected with the history command. History is write-only from the
// crawler's point of view: it is never consulted to skip work.
//
// Design decision: SQLite via modernc.org/sqlite keeps the history a single
// CGO-free file under the XDG data directory. WAL mode lets the history
// command read while a crawl is writing.
package database
