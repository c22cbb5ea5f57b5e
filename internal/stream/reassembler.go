// Package stream 提供按行重组与SSE帧编解码，供中继服务端与消费端共用
package stream

import (
	"io"
	"iter"
	"strings"
)

// LineTerminator 行结束符
const LineTerminator = "\n"

// Reassembler 将任意边界的文本块重组为完整行
//
// 已输出的所有行（各自补回结束符）与 Rest() 拼接后，恒等于输入块的拼接。
type Reassembler struct {
	buf strings.Builder
}

// Feed 追加一个文本块，返回其中已经完整的行（不含结束符）
func (r *Reassembler) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	r.buf.Write(chunk)

	data := r.buf.String()
	last := strings.LastIndex(data, LineTerminator)
	if last < 0 {
		return nil
	}

	lines := strings.Split(data[:last], LineTerminator)
	rest := data[last+len(LineTerminator):]
	r.buf.Reset()
	r.buf.WriteString(rest)
	return lines
}

// Rest 返回尚未遇到结束符的残留内容
func (r *Reassembler) Rest() string {
	return r.buf.String()
}

// Reset 清空残留缓冲
func (r *Reassembler) Reset() {
	r.buf.Reset()
}

// readChunkSize 每次从底层读取的字节数
const readChunkSize = 4096

// Lines 惰性地从 r 中读取完整行
//
// 流结束时残留的不完整行不会输出。读取错误（io.EOF 除外）作为最后一个元素返回。
func Lines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var ra Reassembler
		chunk := make([]byte, readChunkSize)
		for {
			n, err := r.Read(chunk)
			if n > 0 {
				for _, line := range ra.Feed(chunk[:n]) {
					if !yield(line, nil) {
						return
					}
				}
			}
			if err != nil {
				if err != io.EOF {
					yield("", err)
				}
				return
			}
		}
	}
}
