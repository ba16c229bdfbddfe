// Package codec 将对象编码为帧并写入字节流，以及反向解码。
package codec

import (
	"io"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-garden-serde/internal/stream/compressor"
	"github.com/lk2023060901/danmu-garden-serde/internal/stream/framer"
	"github.com/lk2023060901/danmu-garden-serde/internal/stream/serializer"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// Codec 抽象了“从对象到帧，以及从帧回到对象”的完整编解码流程。
//
// Pipeline（写出 Encode）：
//
//	msg --> serializer --> [compress?] --> Envelope{Version+Flags+Payload} --> framer.WriteFrame
//
// Pipeline（读入 Decode）：
//
//	framer.ReadFrame --> Envelope --> [decompress?] --> serializer --> msg
type Codec interface {
	// Encode 将对象编码为一帧并写入 w。
	Encode(w io.Writer, msg any) error

	// Decode 从 r 中读取一帧并解码到 msg（指针）；流结束时返回 io.EOF。
	Decode(r io.Reader, msg any) error

	// DecodeRaw 从 r 中读取一帧，返回帧信息与已解压的负载，不做反序列化。
	DecodeRaw(r io.Reader) (*framer.Envelope, []byte, error)
}

// Options 用于构造 Codec 的依赖注入参数。
type Options struct {
	Framer     framer.Framer
	Serializer serializer.Serializer
	Compressor compressor.Compressor // 允许为 nil（内部会用 NopCompressor）

	EnableCompression bool // 是否启用压缩（影响压缩行为与 Envelope.Flags）
}

type codec struct {
	framer     framer.Framer
	serializer serializer.Serializer
	compressor compressor.Compressor

	compress bool
}

var _ Codec = (*codec)(nil)

// New 创建一个基于给定依赖的 Codec。
func New(opts Options) (Codec, error) {
	if opts.Framer == nil {
		return nil, merr.WrapErrParameterMissing("framer")
	}
	if opts.Serializer == nil {
		return nil, merr.WrapErrParameterMissing("serializer")
	}

	c := &codec{
		framer:     opts.Framer,
		serializer: opts.Serializer,
		compress:   opts.EnableCompression,
		compressor: opts.Compressor,
	}
	if c.compressor == nil {
		c.compressor = compressor.NopCompressor{}
	}
	return c, nil
}

func (c *codec) Encode(w io.Writer, msg any) error {
	if w == nil {
		return merr.WrapErrParameterMissing("writer")
	}

	body, err := c.serializer.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "codec: marshal failed")
	}

	env := &framer.Envelope{Version: framer.CurrentVersion}
	if c.compress && len(body) > 0 {
		packet, err := c.compressor.Compress(nil, body)
		if err != nil {
			return errors.Wrap(err, "codec: compress failed")
		}
		body = packet
		env.Flags |= framer.FlagCompressed
	}
	env.Payload = body

	return c.framer.WriteFrame(w, env)
}

func (c *codec) DecodeRaw(r io.Reader) (*framer.Envelope, []byte, error) {
	if r == nil {
		return nil, nil, merr.WrapErrParameterMissing("reader")
	}

	env, err := c.framer.ReadFrame(r)
	if err != nil {
		return nil, nil, err
	}

	data := env.Payload
	if env.Has(framer.FlagCompressed) {
		if !c.compress {
			return nil, nil, merr.WrapErrOperationNotSupported("decompress", "compressed payload but compression disabled")
		}
		if len(data) == 0 {
			return nil, nil, merr.WrapErrStreamCorrupted("compressed payload is empty")
		}
		plain, err := c.compressor.Decompress(nil, data)
		if err != nil {
			return nil, nil, merr.WrapErrStreamCorrupted("decompress: %v", err)
		}
		data = plain
	}
	return env, data, nil
}

func (c *codec) Decode(r io.Reader, msg any) error {
	_, data, err := c.DecodeRaw(r)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	if err := c.serializer.Unmarshal(data, msg); err != nil {
		return errors.Wrap(err, "codec: unmarshal failed")
	}
	return nil
}
