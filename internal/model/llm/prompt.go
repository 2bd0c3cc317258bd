package llm

import (
	"fmt"
	"os"
	"strings"

	"listing-watcher/internal/listing"
)

// DefaultPromptTemplate 内置回复模板
const DefaultPromptTemplate = `You draft short replies to freelance job postings. Reply in English, addressed to the client.

Job data:
- title: {{TITLE}}
- url: {{URL}}
- price: {{PRICE}}
- days: {{DAYS}}
- deadline: {{DEADLINE}}
- description: {{DESCRIPTION}}
- portfolio: {{PORTFOLIO_URL}}

Write a reply of 90 to 140 words that:
1. Opens with one sentence showing you understood the main outcome of the job. Do not restate every requirement.
2. Follows with one sentence starting with "Timeline:" that references {{DAYS}} and/or {{DEADLINE}}.
3. Gives a plan with one line per day ("Day 1 - ...", "Day 2 - ...") that fits {{DAYS}}.
4. Asks between one and three questions that are strictly needed to fix scope, acceptance or deployment access. Use "A quick question:" for one question, otherwise "A few quick questions:", and number them "1. 2. 3.".
5. Adds the line "Portfolio: {{PORTFOLIO_URL}}".
6. Ends with exactly: "If you have any questions, feel free to reach out - I'll gladly clarify."

Rules:
- Write in the first person singular only.
- Separate each block above with exactly one blank line.
- Use a plain hyphen, never a long dash, and no bullet points.
- No generic self-promotion and no decorative separators.

Now write the reply.
`

const notFound = "(not found)"

// PromptBuilder 用 Record 填充模板占位符
type PromptBuilder struct {
	template     string
	portfolioURL string
}

// NewPromptBuilder template 为空时使用内置模板
func NewPromptBuilder(template, portfolioURL string) *PromptBuilder {
	if strings.TrimSpace(template) == "" {
		template = DefaultPromptTemplate
	}
	return &PromptBuilder{template: template, portfolioURL: portfolioURL}
}

// LoadPromptBuilder 从文件读取模板；path 为空时使用内置模板
func LoadPromptBuilder(path, portfolioURL string) (*PromptBuilder, error) {
	if path == "" {
		return NewPromptBuilder("", portfolioURL), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取 prompt 模板失败: %w", err)
	}
	return NewPromptBuilder(string(b), portfolioURL), nil
}

// Build 生成最终 prompt；缺失字段填 "(not found)"，URL 缺失时留空
func (b *PromptBuilder) Build(rec *listing.Record) string {
	r := strings.NewReplacer(
		"{{TITLE}}", valueOr(rec.Title, notFound),
		"{{URL}}", valueOr(rec.URL, ""),
		"{{PRICE}}", valueOr(rec.Price, notFound),
		"{{DAYS}}", valueOr(rec.Days, notFound),
		"{{DEADLINE}}", valueOr(rec.Deadline, notFound),
		"{{DESCRIPTION}}", valueOr(rec.Description, notFound),
		"{{PORTFOLIO_URL}}", b.portfolioURL,
	)
	return r.Replace(b.template)
}

func valueOr(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
