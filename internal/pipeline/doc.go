// Package pipeline runs the work for one start URL as a sequence of named
// steps over a model.CrawlReport, and crawls several start URLs at once
// with BatchProcessor.
//
// The usual pipeline is a CrawlStep followed by an optional DescribeStep.
// Steps record non-fatal problems in the report and return an error only
// when the remaining steps cannot produce anything useful.
package pipeline
