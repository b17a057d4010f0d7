package score

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/use-agent/gallerydiscover/models"
)

// newRationaleConverter mirrors the teacher's markdown converter setup
// (base + commonmark + table, minimal cell padding), reused here to render
// a Rationale's signal breakdown for CLI/debug output.
func newRationaleConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// Rationale is models.Rationale with score's Markdown rendering attached;
// convert a pattern's rationale with Rationale(p.Rationale).
type Rationale models.Rationale

// Markdown renders r as a Markdown table of signals plus a recommendations
// list, via html-to-markdown: the rationale is built as a small HTML
// fragment and converted, the same two-step path the teacher's pipeline
// uses for page content.
func (r Rationale) Markdown() (string, error) {
	var html strings.Builder
	html.WriteString("<table><thead><tr><th>signal</th><th>score</th><th>weight</th><th>detail</th></tr></thead><tbody>")
	for _, sig := range r.Signals {
		timedOut := ""
		if sig.TimedOut {
			timedOut = " (timed out)"
		}
		fmt.Fprintf(&html, "<tr><td>%s</td><td>%.2f</td><td>%.2f</td><td>%s%s</td></tr>",
			sig.Name, sig.Score, sig.Weight, sig.Detail, timedOut)
	}
	html.WriteString("</tbody></table>")

	if len(r.Recommendations) > 0 {
		html.WriteString("<ul>")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&html, "<li>%s</li>", rec)
		}
		html.WriteString("</ul>")
	}

	conv := newRationaleConverter()
	return conv.ConvertString(html.String())
}
