// ABOUTME: Outcome aggregation and deterministic markdown rendering for perspectives
// ABOUTME: Sections follow request order; totals count successful outcomes only

package perspectives

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the settled result of one model invocation. Err is nil on success.
type Outcome struct {
	Model string
	// Provider is the configured provider name the model routed to, or "".
	Provider string
	// ProviderLabel is the display name shown in the section header, or "".
	ProviderLabel string
	Content       string
	TokensUsed    int
	Latency       time.Duration
	Err           error
}

// OK reports whether the invocation succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Report is the aggregate of a fan-out.
type Report struct {
	Outcomes     []Outcome
	Succeeded    int
	TotalTokens  int
	TotalLatency time.Duration // slowest successful call
}

// Summarize computes totals over outcomes: tokens are summed and latency is the
// maximum, both over successes only.
func Summarize(outcomes []Outcome) Report {
	r := Report{Outcomes: outcomes}
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		r.Succeeded++
		r.TotalTokens += o.TokensUsed
		if o.Latency > r.TotalLatency {
			r.TotalLatency = o.Latency
		}
	}
	return r
}

// Render formats the report as markdown.
func (r Report) Render() string {
	var b strings.Builder

	b.WriteString("# Multiple AI Perspectives\n\n")
	fmt.Fprintf(&b, "Got %d/%d perspectives in %dms using %d tokens.\n\n",
		r.Succeeded, len(r.Outcomes), r.TotalLatency.Milliseconds(), r.TotalTokens)

	for i, o := range r.Outcomes {
		name := strings.ToUpper(o.Model)
		if o.ProviderLabel != "" {
			name += " (" + o.ProviderLabel + ")"
		}
		if o.OK() {
			fmt.Fprintf(&b, "## %s\n%s\n\n", name, o.Content)
			if o.TokensUsed > 0 {
				fmt.Fprintf(&b, "*Tokens: %d, Latency: %dms*\n\n", o.TokensUsed, o.Latency.Milliseconds())
			}
		} else {
			fmt.Fprintf(&b, "## %s - ERROR\n❌ Failed to get response from %s: %s\n\n", name, o.Model, o.Err)
		}

		if i < len(r.Outcomes)-1 {
			b.WriteString("---\n\n")
		}
	}

	return b.String()
}
