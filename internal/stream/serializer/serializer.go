// Package serializer 定义帧负载的“对象 <-> 字节”转换接口及其实现。
package serializer

import (
	"github.com/lk2023060901/danmu-garden-serde/internal/json"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde"
)

// Serializer 抽象了帧负载的序列化能力。
//
// 说明：
//   - Graph 使用对象图格式，保留共享引用与多态类型；
//   - JSON 用于调试或与外部系统交换，不保留引用关系。
type Serializer interface {
	// Marshal 将任意对象编码为字节序列。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将字节序列解码到目标对象，v 为指针。
	Unmarshal(data []byte, v any) error
}

// GraphSerializer 使用 serde.Serializer 编解码，S 为 nil 时使用默认实例。
type GraphSerializer struct {
	S *serde.Serializer
}

var _ Serializer = GraphSerializer{}

func (g GraphSerializer) inner() *serde.Serializer {
	if g.S == nil {
		return serde.Default()
	}
	return g.S
}

// Marshal 以 any 为静态类型写出 v，流中带有 v 的运行时类型。
func (g GraphSerializer) Marshal(v any) ([]byte, error) {
	return g.inner().Marshal(nil, v)
}

func (g GraphSerializer) Unmarshal(data []byte, v any) error {
	return g.inner().UnmarshalInto(data, v)
}

// JSONSerializer 使用 internal/json（基于 bytedance/sonic）实现 JSON 编解码。
type JSONSerializer struct{}

var _ Serializer = JSONSerializer{}

func (JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// ByName 按名字返回序列化实现，可选 graph（默认）与 json。
func ByName(name string, s *serde.Serializer) (Serializer, bool) {
	switch name {
	case "", "graph":
		return GraphSerializer{S: s}, true
	case "json":
		return JSONSerializer{}, true
	}
	return nil, false
}
