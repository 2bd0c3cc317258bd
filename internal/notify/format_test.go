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
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-watcher/internal/listing"
)

func sampleRecord() *listing.Record {
	return &listing.Record{
		Handle:      "/jobs/bot-7",
		Title:       "Bot <MVP>",
		URL:         "https://example.com/jobs/bot-7",
		Description: "Need a bot & a panel",
		Tags:        []string{"go", "telegram"},
		Price:       "$500",
		Days:        "7 days",
	}
}

func TestFormatter_ItemSingle(t *testing.T) {
	parts := NewFormatter().ItemParts(sampleRecord())
	require.Len(t, parts, 1)
	p := parts[0]
	assert.True(t, strings.HasPrefix(p, "<b>Bot &lt;MVP&gt;</b>\n\n<pre>Need a bot &amp; a panel</pre>"))
	assert.Contains(t, p, "Price: $500\nDays: 7 days\nDeadline: (not found)</blockquote>")
	assert.Contains(t, p, "Tags:\n<code>go</code>,\n<code>telegram</code>")
	assert.True(t, strings.HasSuffix(p, "https://example.com/jobs/bot-7"))
}

func TestFormatter_ItemSplit(t *testing.T) {
	rec := sampleRecord()
	rec.Description = strings.Repeat("x", 7000)
	rec.Tags = nil
	parts := NewFormatter().ItemParts(rec)
	require.Len(t, parts, 4)
	assert.True(t, strings.HasPrefix(parts[0], "<b>Bot &lt;MVP&gt;</b>\n<pre>"))
	assert.Equal(t, "<pre>"+strings.Repeat("x", 600)+"</pre>", parts[2])
	assert.True(t, strings.HasPrefix(parts[3], "<blockquote>Price: $500"))
	assert.Contains(t, parts[3], "<code>(no tags)</code>")
	for _, p := range parts {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), MessageLimit)
	}
}

func TestFormatter_Artifact(t *testing.T) {
	f := NewFormatter()
	rec := sampleRecord()

	parts := f.ArtifactParts(rec, "  Hi <client>  ")
	require.Len(t, parts, 1)
	assert.Equal(t, replyHeader+"\n\n<pre>Hi &lt;client&gt;</pre>\n\nhttps://example.com/jobs/bot-7", parts[0])

	parts = f.ArtifactParts(rec, "")
	assert.Contains(t, parts[0], "<pre>(empty)</pre>")

	parts = f.ArtifactParts(rec, strings.Repeat("y", 6500))
	require.Len(t, parts, 3)
	assert.True(t, strings.HasPrefix(parts[0], replyHeader))
	assert.NotContains(t, parts[0], rec.URL)
	assert.NotContains(t, parts[1], rec.URL)
	assert.True(t, strings.HasSuffix(parts[2], "</pre>\n\n"+rec.URL))
}

func TestAppendStatus(t *testing.T) {
	s := AppendStatus("<b>t</b>", StatusAccepted)
	assert.Equal(t, "<b>t</b>\n\n"+StatusAccepted, s)
	assert.Equal(t, s, AppendStatus(s, StatusSkipped), "decision appended once")
	assert.Equal(t, s+"\n"+StatusGenerating, WithProgress(s, StatusGenerating))
}

func TestCallbackData(t *testing.T) {
	data := CallbackData(ActionAccept, "abc123")
	assert.Equal(t, "job:accept:abc123", data)
	action, handle, ok := ParseCallback(data)
	assert.True(t, ok)
	assert.Equal(t, ActionAccept, action)
	assert.Equal(t, "abc123", handle)

	for _, bad := range []string{"", "job:accept:", "job:delete:x", "other:skip:x", "job:skip"} {
		_, _, ok := ParseCallback(bad)
		assert.False(t, ok, bad)
	}
	assert.Equal(t, "job:skip:h", ActionButtons("h")[0][1].Data)
	assert.Equal(t, "job:accept:h", RetryButtons("h")[0][0].Data)
}
