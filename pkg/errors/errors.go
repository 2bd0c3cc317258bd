// Package errors 提供统一错误辅助与错误分类（transient / structural / stale 等），不依赖 internal
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"unicode/utf8"
)

// 常用哨兵错误（可按需扩展错误码）
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")

	// ErrTransient 网络/超时类错误，可退避重试
	ErrTransient = errors.New("transient failure")
	// ErrStructural 拉取到的内容与预期结构不符，对该条目视为永久失败
	ErrStructural = errors.New("unexpected content structure")
	// ErrStale 引用的条目在源站已不存在
	ErrStale = errors.New("referenced item no longer exists")
	// ErrExpired 引用的 handle 已不在注册表中
	ErrExpired = errors.New("record expired")
	// ErrBusy 同一 handle 已有动作在执行
	ErrBusy = errors.New("action already in flight")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Transient 将 err 标记为可重试
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Structural 将 err 标记为结构性（永久）错误
func Structural(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStructural, err)
}

// StatusError 下游 HTTP 返回非预期状态码
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 300 {
		// 按字节截断后回退到 rune 边界
		cut := 300
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Code, body)
}

// Temporary 429 与 5xx 视为可重试
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// IsTransient 判断错误是否值得退避重试：显式标记、网络错误、单次请求超时、429/5xx
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStructural) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ne net.Error
	return errors.As(err, &ne)
}
