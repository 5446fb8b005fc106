// Package report renders crawl reports and history diffs.
//
// Writers:
//   - SimpleWriter: plain text for the terminal (default)
//   - JSONWriter: JSON for tooling
//   - MarkdownWriter: GitHub-flavored Markdown with a failure pie chart
//   - XLSXWriter: spreadsheet with summary, broken link and page sheets
//
// Design decision: rendering lives apart from model so that adding a format
// never touches the data structures.
package report
