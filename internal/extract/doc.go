// Package extract pulls href values out of raw HTML without building a DOM.
//
// The scanner is a permissive token scanner, not a parser. It looks for the
// byte pattern href (any case), an optional '=' surrounded by a little
// whitespace, and a single or double quoted value. Anything else is skipped
// silently: malformed markup never produces an error.
//
// # Architecture
//
//	io.Reader ──► window (carry + read area) ──► FindHref ──► FindQuote
//	                   ▲                                         │
//	                   └──── carry-over ◄── incomplete token ◄───┤
//	                                                             ▼
//	            []string ◄── Materialize ◄── staging slots ◄── DecodeURL
//
// FindHref and FindQuote examine 32-byte lanes at a time using word-level
// (SWAR) comparisons and confirm each candidate with a scalar check. Inputs
// shorter than one lane go straight to the scalar path.
//
// # Buffers
//
// The read window and the URL staging slots live in a Scratch. A Scratch is
// owned by exactly one goroutine at a time; crawl workers acquire one per
// task and Release it when the task finishes. Buffers come from a
// size-classed pool, so steady-state extraction does not allocate per page.
//
// # Boundary safety
//
// A token that may continue past the end of the current read is never
// evaluated on a partial view. The bytes from the start of the token are
// moved to the front of the window and the next read is appended after
// them. The result is independent of how the input is chunked.
package extract
