// Package main is the linkprobe CLI.
//
// linkprobe crawls a site from one or more start URLs and either reports
// broken links (check) or fetches every page to populate caches (warm).
//
// Usage:
//
//	linkprobe check https://example.com/
//	linkprobe warm --assets https://example.com/
//	linkprobe history example.com
//
// See --help for all available options.
package main

func main() {
	Execute()
}
