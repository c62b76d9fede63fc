// Package main provides the entry point for the imagecrawl CLI.
//
// imagecrawl maps a website by following same-host links breadth-first up to
// a depth limit and downloads every image it finds into a local directory.
//
// Usage:
//
//	imagecrawl crawl <site-url> -o <dir>
//	imagecrawl history
//
// See --help for all available options.
package main

// main is the entry point for imagecrawl.
func main() {
	Execute()
}
