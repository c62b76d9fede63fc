// Package pipeline runs the stages of an imagecrawl run in sequence.
//
// A run is crawl then download: the crawl step fills the run's pages and
// image addresses, the download step reads the image addresses and fills the
// per-image outcomes. Each stage is a Step over a shared *model.Run.
//
// Design decision: Steps communicate only through the Run, which makes the
// one-way handoff from crawler to downloader explicit and lets a cancelled
// run still carry whatever the completed steps produced.
//
// BatchProcessor runs one pipeline per seed for multi-site invocations.
package pipeline
