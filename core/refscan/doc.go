// Package refscan extracts scripture citations from free-form text.
//
// The scanner is language agnostic. Book names are taken verbatim from the
// text, in any script, and are never checked against a list of known books.
// Locations follow a small grammar of numbers, comma lists, dash ranges and an
// optional chapter:verse colon.
//
// # Pipeline
//
//   - Classify splits the text into tagged runs: book words, location groups
//     and separators. A bare number directly followed by a word and then a
//     location ("1 Пет 5") is folded into the book name.
//   - ParseLocation turns one location group into a VerseLocation.
//   - ExpandList expands "1-3,7" into [1 2 3 7], keeping written order.
//   - Parser.Scan groups locations under the book name that precedes them and
//     yields each BibleReference once the scan has moved past it.
//
// # Diagnostics
//
// The scanner never fails as a whole. A location group that does not parse,
// a descending range such as "5-3", or a location seen before any book name
// is skipped and reported through the optional diagnostics callback.
//
// # Example
//
//	refs := refscan.Parse("Gen 1:1-3, Act 9")
//	// refs[0].Book == "Gen", refs[0].Locations[0].Verses == []int{1, 2, 3}
//	// refs[1].Book == "Act", refs[1].Locations[0].Chapters == []int{9}
package refscan
