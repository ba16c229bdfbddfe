package serde

import (
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/binio"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// 通用表示：不依赖本进程登记的类型即可读取任意流，用于排查与转储。

// GenericObject 为结构体或 SerializationInfo 的通用表示。
// ID 为其在对象表中的下标，未登记（值类型）时为 -1。
type GenericObject struct {
	ID     int            `json:"id"`
	Type   string         `json:"type"`
	Fields []GenericField `json:"fields"`
}

type GenericField struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Field 按名字查找属性值。
func (g *GenericObject) Field(name string) (any, bool) {
	for _, f := range g.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// GenericRef 为对已读取对象的回引，Index 对应 GenericObject.ID。
type GenericRef struct {
	Index int `json:"ref"`
}

type GenericEntry struct {
	Key   any `json:"key"`
	Value any `json:"value"`
}

// GenericEntity 为未经 EntityBinder 解析的实体 token。
type GenericEntity struct {
	Token any `json:"entity"`
}

// Inspect 使用默认 Serializer 以通用表示读取 data。
func Inspect(data []byte) (any, error) {
	return Default().Inspect(data)
}

// Inspect 以通用表示读取 data：命名类型不做绑定，回引以 GenericRef 表示，map 以键值对列表表示。
func (s *Serializer) Inspect(data []byte) (any, error) {
	in := binio.NewReader(data)
	r := newReader(s, in)
	r.generic = true
	v, err := r.readRoot(nil)
	if err != nil {
		return nil, err
	}
	if in.Remaining() > 0 {
		return nil, merr.WrapErrSerdeInvalidFormat(in.Pos(), "%d trailing bytes", in.Remaining())
	}
	return valueOf(v), nil
}
