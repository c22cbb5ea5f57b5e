// Package imageutil 校验并编码用户上传的图片
package imageutil

import (
	"encoding/base64"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// MaxImageSize 图片大小上限（5MB）
const MaxImageSize = 5 * 1024 * 1024

var (
	// ErrNotImage 文件不是图片
	ErrNotImage = errors.New("只能上传图片文件")
	// ErrImageTooLarge 图片超过大小上限
	ErrImageTooLarge = errors.New("图片大小必须小于5MB")
	// ErrEmptyImage 图片数据为空
	ErrEmptyImage = errors.New("图片数据为空")
)

// Image 校验通过的图片
type Image struct {
	MediaType string // 检测到的MIME类型
	Data      []byte // 原始字节
}

// Base64 无前缀的 base64 编码
func (i Image) Base64() string {
	return Encode(i.Data)
}

// Validate 检查图片类型与大小，返回检测到的MIME类型
func Validate(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if len(data) > MaxImageSize {
		return nil, ErrImageTooLarge
	}

	mt := mimetype.Detect(data)
	mediaType := mt.String()
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, errors.Wrapf(ErrNotImage, "检测到类型 %s", mediaType)
	}
	return &Image{MediaType: mediaType, Data: data}, nil
}

// Encode 无损编码为 base64，不带 data-URL 前缀
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode 解码 base64 图片，兼容带 data-URL 前缀的输入
func Decode(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "图片 base64 解码失败")
	}
	return data, nil
}

// DecodeAndValidate 解码并校验 base64 图片
func DecodeAndValidate(s string) (*Image, error) {
	data, err := Decode(s)
	if err != nil {
		return nil, err
	}
	return Validate(data)
}

// LoadFile 读取本地图片文件并校验
func LoadFile(path string) (*Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取图片 %s 失败", path)
	}
	if info.Size() > MaxImageSize {
		return nil, ErrImageTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取图片 %s 失败", path)
	}
	return Validate(data)
}
