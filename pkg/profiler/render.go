package profiler

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// RenderPlainText writes an indented text view of p: one line per timing with its
// duration and a summary of its custom timings per category.
//
//	web-01 at 2025-11-16T10:30:00Z
//	GET /orders = 42.3ms
//	> load orders = 30.1ms (sql = 28ms in 3 cmds)
func RenderPlainText(w io.Writer, p *Profiler) error {
	if p == nil {
		return nil
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s at %s\n", p.MachineName, p.Started.UTC().Format(time.RFC3339))

	for _, t := range p.Timings() {
		t.mu.Lock()
		bw.WriteString(strings.Repeat(">", t.Depth))
		if t.Depth > 0 {
			bw.WriteByte(' ')
		}
		fmt.Fprintf(bw, "%s = %sms", t.Name, formatMilliseconds(durationOf(t.DurationMilliseconds)))
		if t.IsTrivial {
			bw.WriteString(" (trivial)")
		}
		for _, category := range sortedCategories(t.CustomTimings) {
			list := t.CustomTimings[category]
			var total float64
			for _, ct := range list {
				ct.mu.Lock()
				total += durationOf(ct.DurationMilliseconds)
				ct.mu.Unlock()
			}
			suffix := "s"
			if len(list) == 1 {
				suffix = ""
			}
			fmt.Fprintf(bw, " (%s = %sms in %d cmd%s)", category, formatMilliseconds(total), len(list), suffix)
		}
		t.mu.Unlock()
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func formatMilliseconds(ms float64) string {
	return strconv.FormatFloat(roundTenths(ms), 'f', -1, 64)
}
