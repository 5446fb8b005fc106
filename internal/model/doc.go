// Package model defines the data shared by the crawler, the report writers
// and the history database.
//
//   - Link: one discovered hyperlink (referrer, absolute target, anchor text)
//   - BrokenLink: a link whose target failed the broken-link predicate
//   - PageResult: what a cache-warming fetch observed about a page
//   - CrawlReport: the outcome of crawling one start URL
//
// Design decision: the types live in their own package so that crawler,
// report and database can all depend on them without import cycles.
// Everything here serializes to JSON, which is also the storage format of
// a crawl run in the history database.
package model
