// Package options parses the directive language used by test configuration files.
//
// A configuration is a sequence of directives, each a dash-prefixed name followed by
// zero or more values:
//
//	-run "echo.sh" -acc acc -arg hello 42 -add
//
// Values are bare words, double-quoted strings (with \" and \\ escapes) or numbers.
// Whitespace, including newlines, separates tokens, so a directive may span lines.
// A Set keeps one value list per name; a later directive with the same name replaces
// the earlier list, and merging sets lets the later source win.
package options
