// Package model defines the data structures shared by the crawler, the
// downloader, the history database and the report writers.
//
// This package contains the following main types:
//   - Run: The result of one crawl-and-download session
//   - PageVisit: A page fetched during the crawl and its link depth
//   - ImageDownload: The per-image result produced by the downloader
//   - Outcome: The classification of an image download
//
// Design decision: We keep these types in their own package so that the
// pipeline, database and report packages can share them without importing
// each other. All types are JSON-serializable for reports and storage.
package model
