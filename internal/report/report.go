// Package report renders a scan record as Markdown or HTML.
package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/hpungsan/snapfood/internal/nutrition"
	"github.com/hpungsan/snapfood/internal/scan"
)

var (
	titleCaser = cases.Title(language.English)
	upperCaser = cases.Upper(language.English)

	md = goldmark.New(goldmark.WithExtensions(extension.Table))

	markdownEscaper = strings.NewReplacer(
		`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "#", `\#`,
		"[", `\[`, "]", `\]`, "|", `\|`, "<", `\<`, ">", `\>`,
	)
)

// ConditionTitle returns a display name such as "Weight Loss".
func ConditionTitle(c nutrition.Condition) string {
	return titleCaser.String(strings.ReplaceAll(string(c), "_", " "))
}

// Heading returns the report title: the dish name, or the scan id.
func Heading(rec scan.Record) string {
	if name := norm.NFC.String(strings.TrimSpace(rec.DishName)); name != "" {
		return name
	}
	return "Scan " + rec.ID
}

// Markdown renders rec.
func Markdown(rec scan.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", escape(Heading(rec)))
	fmt.Fprintf(&b, "- **Condition:** %s\n", ConditionTitle(rec.Condition))
	fmt.Fprintf(&b, "- **Health score:** %d/100\n", rec.Score())
	fmt.Fprintf(&b, "- **Scanned:** %s\n", rec.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	if rec.Source != "" {
		fmt.Fprintf(&b, "- **Source:** %s\n", escape(rec.Source))
	}
	fmt.Fprintf(&b, "- **Sync state:** %s\n", rec.SyncState)

	b.WriteString("\n## Nutrients\n\n")
	if rec.Nutrients.Len() == 0 {
		b.WriteString("_No nutrient data._\n")
	} else {
		b.WriteString("| Nutrient | Amount |\n|---|---:|\n")
		for _, name := range rec.Nutrients.Names() {
			fmt.Fprintf(&b, "| %s | %s |\n", escape(name), strconv.FormatFloat(rec.Nutrients.Get(name), 'f', -1, 64))
		}
	}

	b.WriteString("\n## Health flags\n\n")
	for _, f := range rec.Flags {
		fmt.Fprintf(&b, "- **%s** %s\n", upperCaser.String(f.Level.String()), escape(f.Message))
	}

	if len(rec.Recommendations) > 0 {
		b.WriteString("\n## Recommendations\n\n")
		for i, r := range rec.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, escape(r))
		}
	}

	return b.String()
}

// HTML renders the Markdown report through goldmark. Raw HTML in record
// fields is escaped, never passed through.
func HTML(rec scan.Record) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(rec)), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func escape(s string) string {
	return markdownEscaper.Replace(s)
}
