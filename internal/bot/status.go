// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bot

import (
	"fmt"
	"html"
	"strings"

	"listing-watcher/internal/engine"
)

const dash = "—"

func yesNo(v bool) string {
	if v {
		return "✅ Yes"
	}
	return "❌ No"
}

func code(v string) string {
	if v == "" {
		return dash
	}
	return "<code>" + html.EscapeString(v) + "</code>"
}

// StatusHTML 渲染 /status 的 HTML 报告
func StatusHTML(st engine.Status) string {
	var b strings.Builder
	b.WriteString("<b>Listing Watcher Status</b>\n\n")

	b.WriteString("<b>Parser</b>\n<blockquote>")
	fmt.Fprintf(&b, "Running: %s\n", yesNo(st.Running))
	fmt.Fprintf(&b, "Sent: <code>%d</code>\n", st.Sent)
	fmt.Fprintf(&b, "Last top href: %s", code(st.LastTopURL))
	b.WriteString("</blockquote>\n\n")

	b.WriteString("<b>Cache</b>\n<blockquote>")
	fmt.Fprintf(&b, "Seen cache: <code>%d/%d</code>\n", st.Crawl.SeenLen, st.Crawl.SeenCap)
	fmt.Fprintf(&b, "Cached jobs: <code>%d/%d</code>", st.Registry.Len, st.Registry.Cap)
	b.WriteString("</blockquote>\n\n")

	if ai := st.AI; ai != nil {
		b.WriteString("<b>OpenRouter</b>\n<blockquote>")
		if remaining, ok := ai.Remaining(); ok {
			fmt.Fprintf(&b, "Free remaining today: <code>%d/%d</code>\n", remaining, *ai.DailyLimit)
		} else {
			b.WriteString("Free remaining today: <code>" + dash + "</code>\n")
		}
		fmt.Fprintf(&b, "Used today (bot): <code>%d</code>\n", ai.UsedToday)
		if !ai.ResetAt.IsZero() {
			fmt.Fprintf(&b, "Free daily reset: <code>00:00 UTC (next %s local)</code>\n", ai.ResetAt.Local().Format("2006-01-02 15:04"))
		}
		if rl := ai.RateLimit; rl != nil && rl.Remaining != nil && rl.Limit != nil {
			fmt.Fprintf(&b, "Rate limit: <code>%d/%d</code>\n", *rl.Remaining, *rl.Limit)
		}
		fmt.Fprintf(&b, "Key limit reset (spend limit): %s\n", code(ai.LimitReset))
		freeTier := dash
		if ai.IsFreeTier != nil {
			freeTier = yesNo(*ai.IsFreeTier)
		}
		fmt.Fprintf(&b, "Free tier: %s", freeTier)
		b.WriteString("</blockquote>\n\n")
	}

	b.WriteString("<b>Errors</b>\n<blockquote>")
	fmt.Fprintf(&b, "Last error: %s", code(st.LastError))
	if st.AI != nil {
		fmt.Fprintf(&b, "\nOpenRouter status error: %s", code(st.AI.AccountError))
	}
	b.WriteString("</blockquote>")
	return b.String()
}
