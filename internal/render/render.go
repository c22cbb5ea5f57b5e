// Package render 将 MJML 文档转换为 HTML 的边界
package render

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Level 诊断级别
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Diagnostic 转换过程中的一条诊断
type Diagnostic struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	TagName string `json:"tagName,omitempty"`
}

// Options 转换选项
type Options struct {
	KeepComments bool
	Minify       bool
}

// Result 转换结果
type Result struct {
	Output      string
	Diagnostics []Diagnostic
}

// HasErrors 是否包含错误级别的诊断
func (r *Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Level == LevelError {
			return true
		}
	}
	return false
}

// Renderer MJML 转换器
type Renderer interface {
	Render(ctx context.Context, doc string, opts Options) (*Result, error)
}

// RendererFunc 函数形式的转换器
type RendererFunc func(ctx context.Context, doc string, opts Options) (*Result, error)

func (f RendererFunc) Render(ctx context.Context, doc string, opts Options) (*Result, error) {
	return f(ctx, doc, opts)
}

// ErrorOutput 转换失败时展示的内联错误
func ErrorOutput(msg string) string {
	return fmt.Sprintf(`<div style="color: red">Error: %s</div>`, html.EscapeString(msg))
}

// safeRenderer 错误与 panic 不越过边界
type safeRenderer struct {
	inner Renderer
}

// Safe 包装转换器：失败转换为内联错误输出和一条诊断，从不返回错误
func Safe(r Renderer) Renderer {
	return &safeRenderer{inner: r}
}

func (s *safeRenderer) Render(ctx context.Context, doc string, opts Options) (result *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("MJML转换发生panic")
			result, err = failure(fmt.Sprint(p)), nil
		}
	}()

	result, err = s.inner.Render(ctx, doc, opts)
	if err != nil {
		log.Warn().Err(err).Msg("MJML转换失败")
		return failure(errors.Cause(err).Error()), nil
	}
	if result == nil {
		return failure("empty render result"), nil
	}
	return result, nil
}

func failure(msg string) *Result {
	msg = strings.TrimSpace(msg)
	return &Result{
		Output:      ErrorOutput(msg),
		Diagnostics: []Diagnostic{{Level: LevelError, Message: msg}},
	}
}
