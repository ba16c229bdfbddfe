package framer

import (
	"github.com/blang/semver/v4"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// CurrentVersion 为写出的帧格式版本。读取端只接受主版本相同的帧。
var CurrentVersion = semver.MustParse("1.0.0")

// Envelope 标志位。
const (
	FlagCompressed uint64 = 1 << iota
)

// Envelope 为一帧的内容：格式版本、标志位与负载。
//
// 说明：以 protobuf 线格式编码，字段号 1 为版本字符串，2 为标志位，3 为负载；
// 未知字段被跳过，便于新版本追加字段。
type Envelope struct {
	Version semver.Version
	Flags   uint64
	Payload []byte
}

const (
	fieldVersion protowire.Number = 1
	fieldFlags   protowire.Number = 2
	fieldPayload protowire.Number = 3
)

// Has 报告是否设置了标志 f。
func (e *Envelope) Has(f uint64) bool {
	return e.Flags&f != 0
}

// AppendBinary 将 Envelope 编码后追加到 b。
func (e *Envelope) AppendBinary(b []byte) []byte {
	b = protowire.AppendTag(b, fieldVersion, protowire.BytesType)
	b = protowire.AppendString(b, e.Version.String())
	if e.Flags != 0 {
		b = protowire.AppendTag(b, fieldFlags, protowire.VarintType)
		b = protowire.AppendVarint(b, e.Flags)
	}
	if len(e.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Payload)
	}
	return b
}

// Size 返回编码后的字节数。
func (e *Envelope) Size() int {
	n := protowire.SizeTag(fieldVersion) + protowire.SizeBytes(len(e.Version.String()))
	if e.Flags != 0 {
		n += protowire.SizeTag(fieldFlags) + protowire.SizeVarint(e.Flags)
	}
	if len(e.Payload) > 0 {
		n += protowire.SizeTag(fieldPayload) + protowire.SizeBytes(len(e.Payload))
	}
	return n
}

// UnmarshalBinary 解码 AppendBinary 的输出。Payload 引用 data 的拷贝。
func (e *Envelope) UnmarshalBinary(data []byte) error {
	*e = Envelope{}
	sawVersion := false
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return merr.WrapErrStreamCorrupted("envelope tag: %v", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == fieldVersion && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return merr.WrapErrStreamCorrupted("envelope version: %v", protowire.ParseError(n))
			}
			v, err := semver.Parse(s)
			if err != nil {
				return merr.WrapErrStreamCorrupted("envelope version %q: %v", s, err)
			}
			e.Version, sawVersion = v, true
			data = data[n:]
		case num == fieldFlags && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return merr.WrapErrStreamCorrupted("envelope flags: %v", protowire.ParseError(n))
			}
			e.Flags = v
			data = data[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return merr.WrapErrStreamCorrupted("envelope payload: %v", protowire.ParseError(n))
			}
			e.Payload = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return merr.WrapErrStreamCorrupted("envelope field %d: %v", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	if !sawVersion {
		return merr.WrapErrStreamCorrupted("envelope has no version")
	}
	if e.Version.Major != CurrentVersion.Major {
		return merr.WrapErrSerdeUnsupportedVersion(e.Version.String(), CurrentVersion.String())
	}
	return nil
}
