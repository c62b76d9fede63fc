// Package config provides configuration structures and utilities for imagecrawl.
// It defines the crawl bounds, network timeouts, download settings and report
// preferences, plus the optional per-site YAML configuration file.
package config
