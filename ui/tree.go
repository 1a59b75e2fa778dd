// Package ui holds the box drawing helpers shared by the text renderings of
// test results.
package ui

import (
	"strings"
	"unicode/utf8"
)

// Tree connectors
const (
	TreeBranch     = "├── "
	TreeLastBranch = "└── "
	TreeContinue   = "│   " // parent has more siblings
	TreeIndent     = "    " // parent was last
	TreeDetail     = "│       "
)

// Box borders
const (
	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxVertical    = "│"
	BoxHorizontal  = "─"
	BoxTeeRight    = "├"
	BoxTeeLeft     = "┤"
)

// BuildTreePrefix returns the connector for an entry at depth. parentIsLast
// tells, per ancestor level, whether that ancestor was the last of its siblings.
func BuildTreePrefix(depth int, isLast bool, parentIsLast []bool) string {
	if depth == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < depth-1; i++ {
		if i < len(parentIsLast) && parentIsLast[i] {
			b.WriteString(TreeIndent)
		} else {
			b.WriteString(TreeContinue)
		}
	}
	if isLast {
		b.WriteString(TreeLastBranch)
	} else {
		b.WriteString(TreeBranch)
	}
	return b.String()
}

// BuildBoxHeader opens a box of the given width with a title row
func BuildBoxHeader(title string, width int) string {
	if minWidth := utf8.RuneCountInString(title) + 4; width < minWidth {
		width = minWidth
	}
	return BoxTopLeft + strings.Repeat(BoxHorizontal, width-2) + BoxTopRight + "\n" +
		BuildBoxLine(title, width) +
		BoxTeeRight + strings.Repeat(BoxHorizontal, width-2) + BoxTeeLeft + "\n"
}

// BuildBoxLine renders one padded row, truncating content that does not fit
func BuildBoxLine(content string, width int) string {
	maxContentLen := width - 4
	contentLen := utf8.RuneCountInString(content)
	if contentLen > maxContentLen {
		runes := []rune(content)
		content = string(runes[:maxContentLen-3]) + "..."
		contentLen = maxContentLen
	}
	return BoxVertical + " " + content + strings.Repeat(" ", maxContentLen-contentLen+1) + BoxVertical + "\n"
}

// BuildBoxFooter closes a box of the given width
func BuildBoxFooter(width int) string {
	return BoxBottomLeft + strings.Repeat(BoxHorizontal, width-2) + BoxBottomRight + "\n"
}
