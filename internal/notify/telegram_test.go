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
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-watcher/pkg/config"
	pkgerrors "listing-watcher/pkg/errors"
)

type tgCall struct {
	Method string
	Body   map[string]interface{}
}

func newTelegramServer(t *testing.T, respond func(method string, body map[string]interface{}) (int, string)) (*Telegram, *[]tgCall) {
	t.Helper()
	var mu sync.Mutex
	calls := &[]tgCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := map[string]interface{}{}
		_ = json.Unmarshal(raw, &body)
		method := r.URL.Path[len("/botTOKEN/"):]
		mu.Lock()
		*calls = append(*calls, tgCall{Method: method, Body: body})
		mu.Unlock()
		code, resp := respond(method, body)
		w.WriteHeader(code)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return NewTelegram(config.TelegramConfig{Token: "TOKEN", APIURL: srv.URL, Timeout: 5 * time.Second}), calls
}

func TestTelegram_SendWithButtons(t *testing.T) {
	tg, calls := newTelegramServer(t, func(string, map[string]interface{}) (int, string) {
		return 200, `{"ok":true,"result":{"message_id":42}}`
	})
	r, err := tg.Send(context.Background(), "1001", Message{Text: "<b>hi</b>", Buttons: ActionButtons("h1")})
	require.NoError(t, err)
	assert.Equal(t, "42", r.MessageID)

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, "sendMessage", c.Method)
	assert.Equal(t, "1001", c.Body["chat_id"])
	assert.Equal(t, "HTML", c.Body["parse_mode"])
	kb := c.Body["reply_markup"].(map[string]interface{})["inline_keyboard"].([]interface{})
	first := kb[0].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "job:accept:h1", first["callback_data"])
}

func TestTelegram_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		body      string
		transient bool
	}{
		{"flood", 429, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3"}`, true},
		{"server", 502, `bad gateway`, true},
		{"bad request", 400, `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`, false},
		{"forbidden", 403, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg, _ := newTelegramServer(t, func(string, map[string]interface{}) (int, string) {
				return tt.code, tt.body
			})
			_, err := tg.Send(context.Background(), "1", Message{Text: "x"})
			require.Error(t, err)
			var se *pkgerrors.StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, tt.transient, pkgerrors.IsTransient(err))
		})
	}
}

func TestTelegram_EditIgnoresNotModified(t *testing.T) {
	tg, calls := newTelegramServer(t, func(string, map[string]interface{}) (int, string) {
		return 400, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`
	})
	require.NoError(t, tg.Edit(context.Background(), "1", "7", "same", nil))
	kb := (*calls)[0].Body["reply_markup"].(map[string]interface{})["inline_keyboard"].([]interface{})
	assert.Empty(t, kb, "nil buttons clear the keyboard")
}

func TestTelegram_GetUpdates(t *testing.T) {
	tg, calls := newTelegramServer(t, func(method string, _ map[string]interface{}) (int, string) {
		return 200, `{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"chat":{"id":555},"text":"/start"}},
			{"update_id":11,"callback_query":{"id":"cb1","data":"job:skip:abc","message":{"message_id":9,"chat":{"id":555},"text":"item"}}}
		]}`
	})
	ups, err := tg.GetUpdates(context.Background(), 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, ups, 2)
	assert.Equal(t, "/start", ups[0].Message.Text)
	assert.Equal(t, "555", ups[0].Message.ChatID())
	assert.Equal(t, "cb1", ups[1].CallbackQuery.ID)
	assert.Equal(t, "9", ups[1].CallbackQuery.Message.ID())
	assert.Equal(t, float64(30), (*calls)[0].Body["timeout"])
	assert.Equal(t, float64(10), (*calls)[0].Body["offset"])
}
