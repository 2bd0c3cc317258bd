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

package notify

import (
	"html"
	"strings"
	"unicode/utf8"

	"listing-watcher/internal/listing"
	"listing-watcher/pkg/utils"
)

const (
	// MessageLimit 单条消息的安全长度
	MessageLimit = 3900
	// ChunkSize 超长内容的分段长度
	ChunkSize = 3200

	notFound    = "(not found)"
	replyHeader = "<b>Reply draft for the listing above ⬆️</b>"
)

// Formatter 将记录与生成结果渲染为 Telegram HTML 消息
type Formatter struct {
	Limit int
	Chunk int
}

// NewFormatter 默认长度限制
func NewFormatter() *Formatter {
	return &Formatter{Limit: MessageLimit, Chunk: ChunkSize}
}

func orNotFound(s string) string {
	return html.EscapeString(utils.CoalesceString(strings.TrimSpace(s), notFound))
}

func tagLines(tags []string) string {
	if len(tags) == 0 {
		return "<code>(no tags)</code>"
	}
	lines := make([]string, len(tags))
	for i, t := range tags {
		suffix := ","
		if i == len(tags)-1 {
			suffix = ""
		}
		lines[i] = "<code>" + html.EscapeString(t) + "</code>" + suffix
	}
	return strings.Join(lines, "\n")
}

func (f *Formatter) metaBlock(rec *listing.Record) string {
	var b strings.Builder
	b.WriteString("<blockquote>Price: " + orNotFound(rec.Price) + "\n")
	b.WriteString("Days: " + orNotFound(rec.Days) + "\n")
	b.WriteString("Deadline: " + orNotFound(rec.Deadline) + "</blockquote>\n\n")
	b.WriteString("Tags:\n" + tagLines(rec.Tags) + "\n\n")
	b.WriteString(html.EscapeString(rec.URL))
	return b.String()
}

// ItemParts 条目消息；超长时描述按 Chunk 切分，元信息单独作为最后一条
func (f *Formatter) ItemParts(rec *listing.Record) []string {
	title := "<b>" + orNotFound(rec.Title) + "</b>"
	desc := utils.CoalesceString(rec.Description, notFound)
	meta := f.metaBlock(rec)

	one := title + "\n\n<pre>" + html.EscapeString(desc) + "</pre>\n\n" + meta
	if utf8.RuneCountInString(one) <= f.Limit {
		return []string{one}
	}

	chunks := utils.Chunk(desc, f.Chunk)
	parts := make([]string, 0, len(chunks)+1)
	for i, ch := range chunks {
		p := "<pre>" + html.EscapeString(ch) + "</pre>"
		if i == 0 {
			p = title + "\n" + p
		}
		parts = append(parts, p)
	}
	return append(parts, meta)
}

// ArtifactParts 生成结果消息；链接附在最后一条
func (f *Formatter) ArtifactParts(rec *listing.Record, text string) []string {
	answer := utils.CoalesceString(strings.TrimSpace(text), "(empty)")
	link := html.EscapeString(rec.URL)

	one := replyHeader + "\n\n<pre>" + html.EscapeString(answer) + "</pre>\n\n" + link
	if utf8.RuneCountInString(one) <= f.Limit {
		return []string{one}
	}

	chunks := utils.Chunk(answer, f.Chunk)
	parts := make([]string, 0, len(chunks))
	for i, ch := range chunks {
		p := "<pre>" + html.EscapeString(ch) + "</pre>"
		if i == 0 {
			p = replyHeader + "\n\n" + p
		}
		if i == len(chunks)-1 {
			p += "\n\n" + link
		}
		parts = append(parts, p)
	}
	return parts
}

// 状态行
const (
	StatusAccepted   = "✅ Accepted"
	StatusSkipped    = "❌ Skipped"
	StatusGenerating = "⏳ Generating reply…"
	StatusReplySent  = "✅ Reply sent"
	StatusGenFailed  = "❗ Generation error"
	StatusExpired    = "⌛ Listing data expired"
	StatusStale      = "🚫 Listing no longer available"
)

// AppendStatus 在消息末尾追加决定状态；已带 Accepted / Skipped 时不重复追加
func AppendStatus(text, status string) string {
	t := strings.TrimRight(text, " \n")
	if strings.HasSuffix(t, StatusAccepted) || strings.HasSuffix(t, StatusSkipped) {
		return text
	}
	return text + "\n\n" + status
}

// WithProgress 在决定状态后附加一行进度
func WithProgress(text, progress string) string {
	return text + "\n" + progress
}
