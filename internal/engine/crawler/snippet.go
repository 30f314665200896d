package crawler

import "strings"

const tabWidth = 4

// CleanSnippet strips the indentation shared by every non-blank line and
// trims leading and trailing blank lines. Tabs count as tabWidth columns.
func CleanSnippet(code string) string {
	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")

	first, last := 0, len(lines)-1
	for first <= last && strings.TrimSpace(lines[first]) == "" {
		first++
	}
	for last >= first && strings.TrimSpace(lines[last]) == "" {
		last--
	}
	if first > last {
		return ""
	}
	lines = lines[first : last+1]

	minIndent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if w := indentWidth(line); minIndent < 0 || w < minIndent {
			minIndent = w
		}
	}

	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = ""
			continue
		}
		out[i] = stripColumns(line, minIndent)
	}
	return strings.Join(out, "\n")
}

func indentWidth(line string) int {
	w := 0
	for _, r := range line {
		switch r {
		case ' ':
			w++
		case '\t':
			w += tabWidth
		default:
			return w
		}
	}
	return w
}

// stripColumns removes n columns of leading whitespace. A tab that spans
// the cut is replaced by the spaces left over.
func stripColumns(line string, n int) string {
	col := 0
	for i, r := range line {
		if col >= n {
			return line[i:]
		}
		switch r {
		case ' ':
			col++
		case '\t':
			col += tabWidth
			if col > n {
				return strings.Repeat(" ", col-n) + line[i+1:]
			}
		default:
			return line[i:]
		}
	}
	return ""
}
