package render

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafe(t *testing.T) {
	tests := []struct {
		name     string
		inner    RendererFunc
		wantOut  string
		wantDiag []Diagnostic
	}{
		{
			name: "成功",
			inner: func(ctx context.Context, doc string, opts Options) (*Result, error) {
				return &Result{Output: "<html>" + doc + "</html>"}, nil
			},
			wantOut: "<html><mjml></mjml></html>",
		},
		{
			name: "错误",
			inner: func(ctx context.Context, doc string, opts Options) (*Result, error) {
				return nil, errors.Wrap(errors.New("Malformed MJML"), "转换失败")
			},
			wantOut:  `<div style="color: red">Error: Malformed MJML</div>`,
			wantDiag: []Diagnostic{{Level: LevelError, Message: "Malformed MJML"}},
		},
		{
			name: "panic",
			inner: func(ctx context.Context, doc string, opts Options) (*Result, error) {
				panic("unexpected <tag>")
			},
			wantOut:  `<div style="color: red">Error: unexpected &lt;tag&gt;</div>`,
			wantDiag: []Diagnostic{{Level: LevelError, Message: "unexpected <tag>"}},
		},
		{
			name: "空结果",
			inner: func(ctx context.Context, doc string, opts Options) (*Result, error) {
				return nil, nil
			},
			wantOut:  `<div style="color: red">Error: empty render result</div>`,
			wantDiag: []Diagnostic{{Level: LevelError, Message: "empty render result"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Safe(tt.inner).Render(context.Background(), "<mjml></mjml>", Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, result.Output)
			assert.Equal(t, tt.wantDiag, result.Diagnostics)
			assert.Equal(t, len(tt.wantDiag) > 0, result.HasErrors())
		})
	}
}

func TestMJMLCommand_Args(t *testing.T) {
	m := NewMJMLCommand("")
	assert.Equal(t, DefaultBinary, m.Binary)

	assert.Equal(t,
		[]string{"-i", "-s", "--config.validationLevel", "soft", "--config.keepComments", "false", "--config.minify", "true"},
		m.Args(Options{Minify: true}))
	assert.Equal(t,
		[]string{"-i", "-s", "--config.validationLevel", "soft", "--config.keepComments", "true"},
		m.Args(Options{KeepComments: true}))
}

func TestParseDiagnostics(t *testing.T) {
	stderr := "Line 8 of stdin (mj-text) — Attribute foo is illegal\nsomething else\nLine 12 (mj-button) - mj-button cannot be used inside mj-body\n"
	assert.Equal(t, []Diagnostic{
		{Level: LevelWarning, Line: 8, TagName: "mj-text", Message: "Attribute foo is illegal"},
		{Level: LevelWarning, Line: 12, TagName: "mj-button", Message: "mj-button cannot be used inside mj-body"},
	}, ParseDiagnostics(stderr))
}

func TestMJMLCommand_MissingBinary(t *testing.T) {
	m := NewMJMLCommand("mjml-binary-that-does-not-exist")
	_, err := m.Render(context.Background(), "<mjml></mjml>", Options{})
	require.Error(t, err)

	result, err := Safe(m).Render(context.Background(), "<mjml></mjml>", Options{})
	require.NoError(t, err)
	assert.True(t, result.HasErrors())
	assert.Contains(t, result.Output, `<div style="color: red">Error: `)
}

func TestMJMLCommand_Script(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("需要 sh")
	}
	script := filepath.Join(t.TempDir(), "fake-mjml")
	body := "#!/bin/sh\ncat\necho 'Line 3 of stdin (mj-text) — Attribute foo is illegal' >&2\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	result, err := NewMJMLCommand(script).Render(context.Background(), "<mjml></mjml>", Options{Minify: true})
	require.NoError(t, err)
	assert.Equal(t, "<mjml></mjml>", result.Output)
	assert.Equal(t, []Diagnostic{
		{Level: LevelWarning, Line: 3, TagName: "mj-text", Message: "Attribute foo is illegal"},
	}, result.Diagnostics)
	assert.False(t, result.HasErrors())
}
