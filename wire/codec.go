package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

// 编解码错误
var (
	ErrTruncatedMessage      = errors.New("truncated message")
	ErrSerializationOverflow = errors.New("list exceeds 65535 entries")
	ErrTrailingBytes         = errors.New("trailing bytes after message")
)

// ByteOrder 整个线协议统一使用小端序
var ByteOrder = binary.LittleEndian

// MaxListLen 列表长度前缀为 uint16
const MaxListLen = math.MaxUint16

// Reader 带游标的只读解码器，所有 Decode 函数从游标处消费字节
type Reader struct {
	buf []byte
	off int
}

// NewReader 从 buf 起始位置开始解码
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// NewReaderAt 从给定游标开始解码
func NewReaderAt(buf []byte, off int) *Reader {
	return &Reader{buf: buf, off: off}
}

// Offset 当前游标位置
func (r *Reader) Offset() int { return r.off }

// Remaining 剩余未消费的字节数
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrTruncatedMessage
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.Uint8()
	return v != 0, err
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return ByteOrder.Uint16(b), nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return ByteOrder.Uint32(b), nil
}

func (r *Reader) Int64() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(ByteOrder.Uint64(b)), nil
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// count 读取列表长度，并确认剩余字节足以容纳 count 个定长元素
func (r *Reader) count(elemSize int) (int, error) {
	n, err := r.Uint16()
	if err != nil {
		return 0, err
	}
	if r.Remaining() < int(n)*elemSize {
		return 0, ErrTruncatedMessage
	}
	return int(n), nil
}

func appendUint8(dst []byte, v uint8) []byte { return append(dst, v) }

func appendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func appendUint16(dst []byte, v uint16) []byte { return ByteOrder.AppendUint16(dst, v) }

func appendUint32(dst []byte, v uint32) []byte { return ByteOrder.AppendUint32(dst, v) }

func appendInt64(dst []byte, v int64) []byte { return ByteOrder.AppendUint64(dst, uint64(v)) }

func appendFloat32(dst []byte, v float32) []byte {
	return ByteOrder.AppendUint32(dst, math.Float32bits(v))
}
