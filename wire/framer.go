package wire

import (
	"errors"
	"fmt"
)

// PrefixSize 每条消息前的长度前缀（uint32，小端）
const PrefixSize = 4

// DefaultMaxBody 单条消息体的默认上限
const DefaultMaxBody = 64 << 10

var ErrFrameTooLarge = errors.New("frame exceeds maximum body size")

// AppendFrame 追加 [长度前缀][消息体]
func AppendFrame(dst, body []byte) []byte {
	dst = appendUint32(dst, uint32(len(body)))
	return append(dst, body...)
}

// Framer 将任意切分的字节流重组为完整的消息体。
// 长度前缀本身也可能跨越多个分片。非并发安全，每个连接一个实例。
type Framer struct {
	maxBody int

	prefix    [PrefixSize]byte
	prefixLen int

	inBody  bool // 已读到长度前缀，正在累积消息体
	pending int
	body    []byte
}

// NewFramer maxBody <= 0 时使用 DefaultMaxBody
func NewFramer(maxBody int) *Framer {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return &Framer{maxBody: maxBody}
}

// Pending 当前消息体仍需的字节数，0 表示正在等待新的长度前缀
func (f *Framer) Pending() int {
	if !f.inBody {
		return 0
	}
	return f.pending
}

// Feed 消费一个分片，按发送顺序返回其中完成的全部消息体（每个都是独立副本）。
// 返回错误后该 Framer 不可再用，连接应被断开。
func (f *Framer) Feed(chunk []byte) ([][]byte, error) {
	var out [][]byte
	for len(chunk) > 0 {
		if !f.inBody {
			n := copy(f.prefix[f.prefixLen:], chunk)
			f.prefixLen += n
			chunk = chunk[n:]
			if f.prefixLen < PrefixSize {
				break
			}
			size := int(ByteOrder.Uint32(f.prefix[:]))
			f.prefixLen = 0
			if size > f.maxBody {
				return out, fmt.Errorf("declared %d bytes, limit %d: %w", size, f.maxBody, ErrFrameTooLarge)
			}
			f.inBody = true
			f.pending = size
			f.body = make([]byte, 0, size)
		}

		cut := min(f.pending, len(chunk))
		f.body = append(f.body, chunk[:cut]...)
		f.pending -= cut
		chunk = chunk[cut:]

		if f.pending == 0 {
			out = append(out, f.body)
			f.body = nil
			f.inBody = false
		}
	}
	return out, nil
}
