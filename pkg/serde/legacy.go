package serde

import (
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/codec"
)

// 旧版格式：容器总是写出类型，标志位中不记录元素是否裸编码，
// 读取端按容器的静态元素类型推断。只有静态元素类型本身可裸编码时才写出元素标签。

// legacyElementInfo 返回旧版格式下静态元素类型对应的裸编码信息。
func legacyElementInfo(static reflect.Type) *codec.EncoderInfo {
	if static == nil || static.Kind() == reflect.Interface {
		return nil
	}
	return packableInfo(static)
}

var legacyOnce sync.Once

// noteLegacy 首次以旧版格式写出时记录一条日志。
func (s *Serializer) noteLegacy() {
	legacyOnce.Do(func() {
		s.Logger().Info("writing legacy serde format, containers always carry their type",
			zap.Stringer("format", FormatLegacy))
	})
}
