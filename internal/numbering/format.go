// Package numbering は文書番号の組み立て（純粋関数のみ、I/Oなし）。
package numbering

import (
	"fmt"
	"strings"
)

// Format は "SOR-202501-003" のような番号を作る。
// 空のprefix/periodは飛ばす。widthより桁が多い番号は切り詰めない。
func Format(prefix, period string, seq int64, width int) string {
	return join("-", prefix, period, pad(seq, width))
}

func pad(seq int64, width int) string {
	if width < 1 {
		width = 1
	}
	return fmt.Sprintf("%0*d", width, seq)
}

func join(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
