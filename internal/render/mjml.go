package render

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultBinary 默认的 mjml 命令
const DefaultBinary = "mjml"

// MJMLCommand 调用 mjml 命令行转换，文档从标准输入读入，HTML 从标准输出读出
type MJMLCommand struct {
	Binary string
}

// NewMJMLCommand 创建命令行转换器
func NewMJMLCommand(binary string) *MJMLCommand {
	if binary == "" {
		binary = DefaultBinary
	}
	return &MJMLCommand{Binary: binary}
}

// Args 根据选项生成命令行参数
func (m *MJMLCommand) Args(opts Options) []string {
	args := []string{"-i", "-s",
		"--config.validationLevel", "soft",
		"--config.keepComments", strconv.FormatBool(opts.KeepComments),
	}
	if opts.Minify {
		args = append(args, "--config.minify", "true")
	}
	return args
}

func (m *MJMLCommand) Render(ctx context.Context, doc string, opts Options) (*Result, error) {
	cmd := exec.CommandContext(ctx, m.Binary, m.Args(opts)...)
	cmd.Stdin = strings.NewReader(doc)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, errors.Wrapf(errors.New(msg), "执行 %s 失败", m.Binary)
	}

	return &Result{
		Output:      stdout.String(),
		Diagnostics: ParseDiagnostics(stderr.String()),
	}, nil
}

// 形如 "Line 12 of stdin (mj-text) — Attribute foo is illegal"
var diagnosticPattern = regexp.MustCompile(`^Line (\d+)(?: of [^(]*)?\s*\(([^)]+)\)\s*(?:—|-)\s*(.+)$`)

// ParseDiagnostics 解析 mjml 输出到标准错误的校验信息
func ParseDiagnostics(stderr string) []Diagnostic {
	var out []Diagnostic
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := diagnosticPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		out = append(out, Diagnostic{
			Level:   LevelWarning,
			Line:    n,
			TagName: m[2],
			Message: m[3],
		})
	}
	return out
}
