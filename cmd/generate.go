package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	relayclient "mjml_stream/internal/clients/relay"
	wsclient "mjml_stream/internal/clients/ws"
	"mjml_stream/internal/consumer"
	"mjml_stream/internal/document"
	"mjml_stream/internal/imageutil"
	"mjml_stream/internal/models"
	"mjml_stream/internal/render"
	"mjml_stream/internal/throttle"
)

type generateOptions struct {
	url          string
	transport    string
	prompt       string
	image        string
	sessionID    string
	current      string
	policy       string
	output       string
	htmlOutput   string
	raw          bool
	mjmlBinary   string
	keepComments bool
	minify       bool
	interval     time.Duration
	timeout      time.Duration
}

func newGenerateCommand() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "调用中继生成模板，并输出注入标识后的文档",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}
			return generate(ctx, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "http://localhost:3000", "中继服务地址")
	f.StringVar(&opts.transport, "transport", "sse", "传输方式: sse / ws")
	f.StringVarP(&opts.prompt, "prompt", "p", "", "提示词")
	f.StringVar(&opts.image, "image", "", "附带的图片文件")
	f.StringVar(&opts.sessionID, "session", "", "复用的会话ID")
	f.StringVar(&opts.current, "current", "", "当前文档文件")
	f.StringVar(&opts.policy, "policy", "class", "标识策略: class / inline / none")
	f.StringVarP(&opts.output, "output", "o", "", "最终文档输出文件，默认标准输出")
	f.StringVar(&opts.htmlOutput, "html", "", "渲染后的HTML输出文件")
	f.BoolVar(&opts.raw, "raw", false, "将原始流实时写到标准错误")
	f.StringVar(&opts.mjmlBinary, "mjml-binary", "", "mjml 命令路径，为空时不渲染")
	f.BoolVar(&opts.keepComments, "keep-comments", false, "渲染时保留注释")
	f.BoolVar(&opts.minify, "minify", true, "渲染时压缩输出")
	f.DurationVar(&opts.interval, "interval", throttle.DefaultInterval, "预览渲染的最小间隔")
	f.DurationVar(&opts.timeout, "timeout", 0, "整体超时")
	cmd.MarkFlagRequired("prompt")
	return cmd
}

// frameSource 按传输方式打开帧流
func frameSource(ctx context.Context, opts *generateOptions, req models.GenerateRequest) (consumer.Source, io.Closer, error) {
	switch opts.transport {
	case "sse", "":
		s, err := relayclient.NewClient(relayclient.Config{BaseURL: opts.url}).Generate(ctx, req)
		if err != nil {
			return nil, nil, err
		}
		return s.Frames(), s, nil
	case "ws", "websocket":
		conn, err := wsclient.NewClient(wsclient.Config{URL: opts.url, HeartbeatInterval: 30 * time.Second}).Generate(ctx, req)
		if err != nil {
			return nil, nil, err
		}
		return conn.Frames(), conn, nil
	default:
		return nil, nil, errors.Errorf("未知的传输方式: %s", opts.transport)
	}
}

func buildRequest(opts *generateOptions) (models.GenerateRequest, error) {
	req := models.GenerateRequest{
		Prompt:    opts.prompt,
		SessionID: opts.sessionID,
	}
	if opts.image != "" {
		img, err := imageutil.LoadFile(opts.image)
		if err != nil {
			return req, err
		}
		req.Image = img.Base64()
	}
	if opts.current != "" {
		data, err := os.ReadFile(opts.current)
		if err != nil {
			return req, errors.Wrapf(err, "读取文档 %s 失败", opts.current)
		}
		req.CurrentMJML = string(data)
	}
	return req, nil
}

func generate(ctx context.Context, opts *generateOptions, stdout io.Writer) error {
	policy, err := document.ParsePolicy(opts.policy)
	if err != nil {
		return err
	}
	req, err := buildRequest(opts)
	if err != nil {
		return err
	}

	var renderer render.Renderer
	if opts.mjmlBinary != "" {
		renderer = render.Safe(render.NewMJMLCommand(opts.mjmlBinary))
	}
	renderOpts := render.Options{KeepComments: opts.keepComments, Minify: opts.minify}

	state := document.NewState()
	preview := throttle.New(opts.interval, func(doc string) {
		event := log.Debug().Int("bytes", len(doc))
		if renderer != nil {
			result, _ := renderer.Render(ctx, doc, renderOpts)
			event = event.Int("diagnostics", len(result.Diagnostics))
		}
		event.Msg("预览已更新")
	})
	defer preview.Stop()

	var rawOut io.Writer
	if opts.raw {
		rawOut = os.Stderr
	}
	subscribers := []consumer.Subscriber{
		consumer.NewRawAccumulator(rawOut),
		consumer.NewPreviewSubscriber(state, preview),
		consumer.SubscriberFunc(func(e consumer.Event) {
			if e.Kind == consumer.EventSession {
				log.Info().Str("session_id", e.SessionID).Msg("会话已建立")
			}
		}),
	}

	frames, closer, err := frameSource(ctx, opts, req)
	if err != nil {
		return err
	}
	defer closer.Close()

	result, err := consumer.New(state, consumer.Options{Policy: policy}, subscribers...).Run(ctx, frames)
	if err != nil {
		// 已收到的内容仍然输出，错误附在末尾
		if result != nil && result.Content != "" {
			fmt.Fprintln(stdout, result.Raw)
		}
		return err
	}

	if err := writeOutput(opts.output, stdout, result.Document); err != nil {
		return err
	}

	if renderer != nil && opts.htmlOutput != "" {
		rendered, _ := renderer.Render(ctx, result.Document, renderOpts)
		for _, d := range rendered.Diagnostics {
			log.Warn().Str("level", string(d.Level)).Int("line", d.Line).Str("tag", d.TagName).Msg(d.Message)
		}
		if err := writeOutput(opts.htmlOutput, stdout, rendered.Output); err != nil {
			return err
		}
	}

	log.Info().
		Str("session_id", result.SessionID).
		Int("progress", result.Progress).
		Int("skipped", result.Skipped).
		Strs("ids", result.AssignedIDs).
		Msg("生成完成")
	return nil
}

func writeOutput(path string, stdout io.Writer, content string) error {
	if path == "" {
		_, err := fmt.Fprintln(stdout, content)
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "写入 %s 失败", path)
	}
	return nil
}
