package gateway

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge 帧长度超过上限，连接随后被关闭。
var ErrFrameTooLarge = errors.New("frame exceeds max size")

const frameHeaderLen = 4

// ReadFrame 读取 4 字节大端长度前缀及其后的负载。
func ReadFrame(r io.Reader, maxBytes int) ([]byte, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if int64(n) > int64(maxBytes) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxBytes)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame 写出一帧，供上游发送端与测试使用。
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, frameHeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[frameHeaderLen:], payload)
	_, err := w.Write(buf)
	return err
}
