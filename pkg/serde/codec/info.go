package codec

import (
	"reflect"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/binio"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/wire"
)

type (
	encodeFunc    func(w binio.Writer, v reflect.Value, s *Settings) error
	encodeRawFunc func(w binio.Writer, v reflect.Value, s *Settings)
	decodeFunc    func(r *binio.Reader, tag wire.Tag) (reflect.Value, error)
	decodeRawFunc func(r *binio.Reader) (reflect.Value, error)
)

// EncoderInfo 将 Go 类型绑定到其标签与写出函数。
//
// 说明：
//   - Tracked 为 true 的类型是引用值，写出前需查询对象表；
//   - Packable 为 true 的类型支持无标签裸编码，可用于元素类型只标记一次的容器。
type EncoderInfo struct {
	Type     reflect.Type
	Tag      wire.Tag
	Tracked  bool
	Packable bool
	Custom   bool

	encode    encodeFunc
	encodeRaw encodeRawFunc
}

// Encode 写出带标签的值，v 的类型必须为 Type。
func (e *EncoderInfo) Encode(w binio.Writer, v reflect.Value, s *Settings) error {
	return e.encode(w, v, s)
}

// EncodeRaw 写出不带标签的负载，仅 Packable 类型可用。
func (e *EncoderInfo) EncodeRaw(w binio.Writer, v reflect.Value, s *Settings) {
	e.encodeRaw(w, v, s)
}

// DecoderInfo 将标签绑定到读取函数；同一类型的零值、NaN 等变体共享一个 DecoderInfo。
type DecoderInfo struct {
	Tag     wire.Tag
	Type    reflect.Type
	Tracked bool

	decode    decodeFunc
	decodeRaw decodeRawFunc
}

// Decode 读取 tag 之后的负载。
func (d *DecoderInfo) Decode(r *binio.Reader, tag wire.Tag) (reflect.Value, error) {
	return d.decode(r, tag)
}

// DecodeRaw 读取不带标签的负载。
func (d *DecoderInfo) DecodeRaw(r *binio.Reader) (reflect.Value, error) {
	return d.decodeRaw(r)
}

// Packable 报告该标签是否支持裸编码。
func (d *DecoderInfo) Packable() bool { return d.decodeRaw != nil }
