package render

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/deusflow/marketbrief/internal/gemini"
)

const dailyTemplate = `# The All-in-One Daily Brief — {{.Date}} (EN)

## 60-Second Dashboard
- Rates: {{.Dashboard.Rates}}
- Inflation: {{.Dashboard.Inflation}}
- Energy: {{.Dashboard.Energy}}
- FX (USD/EUR + notable moves): {{.Dashboard.FX}}
- Risk (credit/vol/sentiment): {{.Dashboard.Risk}}

## The 3 Stories That Matter
{{range $i, $s := .Stories}}### {{inc $i}}) {{$s.Title}}
**What happened:**
{{$s.WhatHappened}}

**Why it matters:**
{{$s.WhyItMatters}}

**What to watch next:**
{{$s.WhatToWatchNext}}

**Sources:** {{join $s.Sources}}

{{end}}## Quick Hits (6–10)
{{range .QuickHits}}- {{.Text}} ({{join .Sources}})
{{end}}
## Crypto + Tokenized Assets (2–3 items)
{{range .CryptoBlock}}- **{{.Title}}** — {{.Body}} ({{join .Sources}})
{{end}}
## Next 24–48h Watchlist
{{range .Watchlist}}- {{.}}
{{end}}
## Sources (all links)
{{range $i, $u := .AllSources}}{{inc $i}}) {{$u}}
{{end}}`

var daily = template.Must(template.New("daily").Funcs(template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"join": func(urls []string) string { return strings.Join(urls, ", ") },
}).Parse(dailyTemplate))

type dailyData struct {
	Date string
	*gemini.Draft
}

// Daily renders the full markdown brief for one UTC date. Exactly three
// stories are rendered; extras from the draft are dropped.
func Daily(date string, d *gemini.Draft) (string, error) {
	if len(d.Stories) < 3 {
		return "", fmt.Errorf("render: draft has %d stories, need 3", len(d.Stories))
	}
	trimmed := *d
	trimmed.Stories = d.Stories[:3]

	var b strings.Builder
	if err := daily.Execute(&b, dailyData{Date: date, Draft: &trimmed}); err != nil {
		return "", fmt.Errorf("render: execute daily template: %w", err)
	}
	return b.String(), nil
}

// Stub is the degraded-mode brief written when ingestion volume is too low to
// build a reliable brief.
func Stub(date string, itemsFound int, feedsPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Daily Brief — %s\n\n", date)
	b.WriteString("⚠️ Not enough items ingested to generate a reliable brief today.\n\n")
	fmt.Fprintf(&b, "- Items found: %d\n", itemsFound)
	fmt.Fprintf(&b, "- Action: check RSS sources in %s\n", feedsPath)
	return b.String()
}
