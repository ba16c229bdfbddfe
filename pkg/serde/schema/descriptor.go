// Package schema 为结构体类型构建有序属性描述，并生成带版本的类型模式头。
package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/lk2023060901/danmu-garden-serde/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/binio"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/codec"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/typeutil"
)

// TagName 为控制属性名与忽略的结构体标签键。
const TagName = "serde"

// ValueWriter 为图写入器处理非原始属性的回调。
type ValueWriter func(declared reflect.Type, v reflect.Value) error

// Property 为结构体的一个可序列化字段。
type Property struct {
	Name  string
	Index []int
	Type  reflect.Type
	// Ignored 的属性不出现在模式头中。
	Ignored bool

	fast *codec.EncoderInfo
}

// Get 返回 obj 中该属性的值，obj 为结构体值。
func (p *Property) Get(obj reflect.Value) reflect.Value {
	return obj.FieldByIndex(p.Index)
}

// Set 将 v 写入 obj 中的该属性，obj 必须可寻址。
func (p *Property) Set(obj, v reflect.Value) {
	f := obj.FieldByIndex(p.Index)
	if !v.IsValid() {
		f.SetZero()
		return
	}
	f.Set(v)
}

// Descriptor 为结构体类型的属性描述，构建后不可变。
type Descriptor struct {
	Type reflect.Type
	// Properties 为参与序列化的属性，按字段声明顺序排列。
	Properties []*Property
	// Ignored 为标记了忽略的属性。
	Ignored []*Property

	byName map[string]int

	headerOnce sync.Once
	header     []byte
}

// Lookup 按序列化名查找属性下标。
func (d *Descriptor) Lookup(name string) (int, bool) {
	i, ok := d.byName[name]
	return i, ok
}

// Names 返回属性名列表。
func (d *Descriptor) Names() []string {
	return lo.Map(d.Properties, func(p *Property, _ int) string { return p.Name })
}

// Header 返回模式头：版本字节、属性个数与各属性名。
func (d *Descriptor) Header() []byte {
	d.headerOnce.Do(func() {
		w := binio.NewGrowableWriter()
		defer w.Release()
		w.PutByte(wire.SchemaVersion)
		w.PutUvarint(uint64(len(d.Properties)))
		for _, p := range d.Properties {
			w.PutString(p.Name)
		}
		d.header = w.Detach()
	})
	return d.header
}

// WriteAll 依次写出 obj 的全部属性，原始类型走快速路径，其余交给 slow。
func (d *Descriptor) WriteAll(w binio.Writer, obj reflect.Value, s *codec.Settings, slow ValueWriter) error {
	for _, p := range d.Properties {
		v := obj.FieldByIndex(p.Index)
		if p.fast != nil {
			if err := p.fast.Encode(w, v, s); err != nil {
				return err
			}
			continue
		}
		if err := slow(p.Type, v); err != nil {
			return fmt.Errorf("property %s.%s: %w", d.Type.Name(), p.Name, err)
		}
	}
	return nil
}

// Map 将流中的属性名映射到本类型的属性下标，无法映射的为 -1。
// rename 为可选的改名解析器，返回本类型中的新属性名。
func (d *Descriptor) Map(names []string, rename func(t reflect.Type, name string) (string, bool)) []int {
	return lo.Map(names, func(name string, _ int) int {
		if i, ok := d.byName[name]; ok {
			return i
		}
		if rename != nil {
			if renamed, ok := rename(d.Type, name); ok {
				if i, ok := d.byName[renamed]; ok {
					return i
				}
			}
		}
		return -1
	})
}

var (
	descriptors = typeutil.NewConcurrentMap[reflect.Type, *Descriptor]()
	group       singleflight.Group
)

// DescriptorOf 返回结构体类型 t 的属性描述，结果按类型缓存。
func DescriptorOf(t reflect.Type) (*Descriptor, error) {
	if d, ok := descriptors.Get(t); ok {
		return d, nil
	}
	if t.Kind() != reflect.Struct {
		return nil, merr.WrapErrSerdeUnsupportedType(t, "not a struct")
	}
	// 不同包中同名的匿名类型可能共用一个 key，因此结果以类型再取一次
	_, err, _ := group.Do(t.PkgPath()+"|"+t.String(), func() (any, error) {
		d, err := build(t)
		if err != nil {
			return nil, err
		}
		if _, loaded := descriptors.GetOrInsert(t, d); !loaded {
			metrics.SerdeSchemaCacheSize.Inc()
		}
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	if d, ok := descriptors.Get(t); ok {
		return d, nil
	}
	d, err := build(t)
	if err != nil {
		return nil, err
	}
	d, _ = descriptors.GetOrInsert(t, d)
	return d, nil
}

func build(t reflect.Type) (*Descriptor, error) {
	d := &Descriptor{Type: t, byName: make(map[string]int)}
	seen := typeutil.NewSet[string]()
	fields := lo.Filter(reflect.VisibleFields(t), func(f reflect.StructField, _ int) bool {
		return len(f.Index) == 1 && f.IsExported()
	})
	for _, f := range fields {
		name, ignored := parseTag(f)
		p := &Property{Name: name, Index: f.Index, Type: f.Type, Ignored: ignored}
		if ignored {
			d.Ignored = append(d.Ignored, p)
			continue
		}
		if seen.Contain(name) {
			return nil, merr.WrapErrSerdeUnsupportedType(t, "duplicate property name "+name)
		}
		seen.Insert(name)
		p.fast = fastPath(f.Type)
		d.byName[name] = len(d.Properties)
		d.Properties = append(d.Properties, p)
	}
	return d, nil
}

func parseTag(f reflect.StructField) (string, bool) {
	tag, ok := f.Tag.Lookup(TagName)
	if !ok {
		return f.Name, false
	}
	if tag == "-" {
		return f.Name, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	return name, lo.Contains(strings.Split(opts, ","), "ignore")
}

// fastPath 返回字段类型可直接使用的原始编码；字符串与引用类型需要经过引用表，不走快速路径。
func fastPath(t reflect.Type) *codec.EncoderInfo {
	info, ok := codec.Resolve(t)
	if !ok || !info.Packable || info.Custom {
		return nil
	}
	return info
}

// ParseHeader 读取 Header 写出的模式头并返回属性名。
func ParseHeader(r *binio.Reader) ([]string, error) {
	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != wire.SchemaVersion {
		return nil, merr.WrapErrSerdeUnsupportedVersion(version, wire.SchemaVersion)
	}
	n, err := r.ReadLen(1)
	if err != nil {
		return nil, err
	}
	names := make([]string, n)
	for i := range names {
		if names[i], err = r.ReadString(); err != nil {
			return nil, err
		}
	}
	return names, nil
}
