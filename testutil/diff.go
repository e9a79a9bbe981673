package testutil

import (
	"strings"

	"github.com/andreyvit/diff"

	"github.com/leftmike/cowrows/sql"
)

// RowsText formats rows one per line for diffing in test failures.
func RowsText(values [][]sql.Value) string {
	var sb strings.Builder
	for _, row := range values {
		for cdx, v := range row {
			if cdx > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(sql.Format(v))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// DiffLines returns a line oriented diff of got against want; empty when
// they match.
func DiffLines(got, want string) string {
	if got == want {
		return ""
	}
	return diff.LineDiff(want, got)
}
