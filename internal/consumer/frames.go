// Package consumer 消费中继的帧流，驱动原始累积与节流预览两种更新节奏
package consumer

import (
	"io"
	"iter"

	"mjml_stream/internal/stream"
)

// Source 有限、可中止的帧序列
//
// 解析失败的帧以 *stream.FrameParseError 形式给出，序列继续；其他错误后序列结束。
type Source = iter.Seq2[stream.Envelope, error]

// Frames 从SSE字节流中解码帧，遇到 [DONE] 结束
//
// 字节流在结束标记之前结束时产出 stream.ErrMissingDone。
func Frames(r io.Reader) Source {
	return func(yield func(stream.Envelope, error) bool) {
		for line, err := range stream.Lines(r) {
			if err != nil {
				yield(stream.Envelope{}, err)
				return
			}

			env, kind, err := stream.ParseLine(line)
			switch {
			case err != nil:
				if !yield(stream.Envelope{}, err) {
					return
				}
			case kind == stream.LineDone:
				return
			case kind == stream.LineData:
				if !yield(env, nil) {
					return
				}
			}
		}
		yield(stream.Envelope{}, stream.ErrMissingDone)
	}
}
