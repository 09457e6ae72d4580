package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
)

// Summary renders the session's configuration and normalized grid as a
// markdown document.
func (s *PivotService) Summary(ctx context.Context, id core.SessionID, mode pivot.PercentageMode, decimals int) (string, error) {
	view, err := s.Normalized(ctx, id, mode, decimals)
	if err != nil {
		return "", err
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Pivot: %s\n\n", escapeMarkdown(sess.DataSource))
	writeList(&b, "Rows", sess.Buckets.Rows)
	writeList(&b, "Columns", sess.Buckets.Columns)
	writeList(&b, "Filters", sess.Buckets.Filters)

	values := make([]string, 0, len(sess.Buckets.Values))
	for _, v := range sess.Buckets.Values {
		label := fmt.Sprintf("%s (%s)", v.Field, v.Aggregation)
		if v.WeightColumn != "" {
			label = fmt.Sprintf("%s (%s by %s)", v.Field, v.Aggregation, v.WeightColumn)
		}
		values = append(values, label)
	}
	writeList(&b, "Values", values)

	fmt.Fprintf(&b, "\n**Mode:** %s", view.Mode)
	if view.Mode != pivot.PercentageOff {
		fmt.Fprintf(&b, " (%d decimals)", view.Decimals)
	}
	b.WriteString("\n\n")

	if len(view.Rows) == 0 {
		b.WriteString("_No rows._\n")
		return b.String(), nil
	}

	b.WriteString("|")
	for _, col := range view.Columns {
		fmt.Fprintf(&b, " %s |", escapeMarkdown(col))
	}
	b.WriteString("\n|")
	for range view.Columns {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range view.Rows {
		b.WriteString("|")
		for _, col := range view.Columns {
			fmt.Fprintf(&b, " %s |", escapeMarkdown(formatCell(row[col], view.Mode)))
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func writeList(b *strings.Builder, label string, items []string) {
	text := "_none_"
	if len(items) > 0 {
		escaped := make([]string, len(items))
		for i, item := range items {
			escaped[i] = escapeMarkdown(item)
		}
		text = strings.Join(escaped, ", ")
	}
	fmt.Fprintf(b, "- **%s:** %s\n", label, text)
}

func formatCell(v any, mode pivot.PercentageMode) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		if mode != pivot.PercentageOff {
			s += "%"
		}
		return s
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

var markdownEscaper = strings.NewReplacer("|", `\|`, "*", `\*`, "_", `\_`, "`", "\\`", "\n", " ")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
