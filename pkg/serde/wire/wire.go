// Package wire 定义对象图二进制格式中的全部判别标签（Tag）与结构标志位。
//
// 说明：
//   - 标签以无符号 varint 写出；
//   - 原始类型占用 [0, 127]，结构类型占用 [128, 254]，自定义类型从 256 起；
//   - 偶数为基础标签，基础标签 | ArrayBit 表示该原始类型的紧凑数组形式。
package wire

import "fmt"

// Tag 为流中每个值前置的判别值。
type Tag uint32

// ArrayBit 为原始类型标签的数组修饰位。
const ArrayBit Tag = 1

const (
	Null  Tag = 0
	True  Tag = 2
	False Tag = 4

	Int8        Tag = 6
	Int8Zero    Tag = 8
	Uint8       Tag = 10
	Uint8Zero   Tag = 12
	Int16       Tag = 14
	Int16Zero   Tag = 16
	Uint16      Tag = 18
	Uint16Zero  Tag = 20
	Int32       Tag = 22
	Int32Zero   Tag = 24
	Uint32      Tag = 26
	Uint32Zero  Tag = 28
	Int64       Tag = 30
	Int64Zero   Tag = 32
	Uint64      Tag = 34
	Uint64Zero  Tag = 36
	Int         Tag = 38
	IntZero     Tag = 40
	Uint        Tag = 42
	UintZero    Tag = 44
	Uintptr     Tag = 46
	UintptrZero Tag = 48

	Float32     Tag = 50
	Float32Zero Tag = 52
	Float32NaN  Tag = 54
	Float64     Tag = 56
	Float64Zero Tag = 58
	Float64NaN  Tag = 60
	Complex64   Tag = 62
	Complex128  Tag = 64

	String       Tag = 66
	StringEmpty  Tag = 68
	UUID         Tag = 70
	UUIDEmpty    Tag = 72
	Time         Tag = 74
	TimeDefault  Tag = 76
	Duration     Tag = 78
	DurationZero Tag = 80
	URL          Tag = 82
	BigInt       Tag = 84
	BigIntZero   Tag = 86

	StringBuilder Tag = 88
	BytesBuffer   Tag = 90

	// Type 后随类型描述；TypeRef 后随类型表索引。
	Type Tag = 92

	LastPrimitive Tag = 127
)

const (
	Object            Tag = 128
	ObjectRef         Tag = 130
	TypeSchema        Tag = 132
	TypeSchemaRef     Tag = 134
	TypeRef           Tag = 136
	StringRef         Tag = 138
	Collection        Tag = 140
	Dictionary        Tag = 142
	Enumerable        Tag = 144
	Tuple             Tag = 146
	KeyValuePair      Tag = 148
	SerializationInfo Tag = 150
	EndOfList         Tag = 152
	Array             Tag = 154
	Box               Tag = 156
	TypedValue        Tag = 158
	EntityRef         Tag = 160

	FirstStructural Tag = 128
	LastStructural  Tag = 254
	FirstCustom     Tag = 256
)

// MaxCustomCode 为自定义类型编码的上限（不含）。
const MaxCustomCode = 1 << 24

// SchemaVersion 为类型模式头的版本字节。
const SchemaVersion byte = 1

// CustomTag 返回自定义编码 code 对应的标签。
func CustomTag(code uint32) Tag {
	return Tag(2*code) + FirstCustom
}

// CustomCode 为 CustomTag 的逆运算。
func (t Tag) CustomCode() uint32 {
	return uint32(t-FirstCustom) / 2
}

func (t Tag) IsPrimitive() bool { return t <= LastPrimitive }

func (t Tag) IsStructural() bool { return t >= FirstStructural && t <= LastStructural }

func (t Tag) IsCustom() bool { return t >= FirstCustom && t%2 == 0 }

// IsArray 报告 t 是否为原始类型的紧凑数组标签。
func (t Tag) IsArray() bool { return t.IsPrimitive() && t&ArrayBit != 0 }

// Element 返回数组标签的元素标签。
func (t Tag) Element() Tag { return t &^ ArrayBit }

// Packed 返回 t 的紧凑数组标签。
func (t Tag) Packed() Tag { return t | ArrayBit }

var tagNames = map[Tag]string{
	Null: "Null", True: "True", False: "False",
	Int8: "Int8", Int8Zero: "Int8Zero", Uint8: "Uint8", Uint8Zero: "Uint8Zero",
	Int16: "Int16", Int16Zero: "Int16Zero", Uint16: "Uint16", Uint16Zero: "Uint16Zero",
	Int32: "Int32", Int32Zero: "Int32Zero", Uint32: "Uint32", Uint32Zero: "Uint32Zero",
	Int64: "Int64", Int64Zero: "Int64Zero", Uint64: "Uint64", Uint64Zero: "Uint64Zero",
	Int: "Int", IntZero: "IntZero", Uint: "Uint", UintZero: "UintZero",
	Uintptr: "Uintptr", UintptrZero: "UintptrZero",
	Float32: "Float32", Float32Zero: "Float32Zero", Float32NaN: "Float32NaN",
	Float64: "Float64", Float64Zero: "Float64Zero", Float64NaN: "Float64NaN",
	Complex64: "Complex64", Complex128: "Complex128",
	String: "String", StringEmpty: "StringEmpty", UUID: "UUID", UUIDEmpty: "UUIDEmpty",
	Time: "Time", TimeDefault: "TimeDefault", Duration: "Duration", DurationZero: "DurationZero",
	URL: "URL", BigInt: "BigInt", BigIntZero: "BigIntZero",
	StringBuilder: "StringBuilder", BytesBuffer: "BytesBuffer", Type: "Type",
	Object: "Object", ObjectRef: "ObjectRef", TypeSchema: "TypeSchema", TypeSchemaRef: "TypeSchemaRef",
	TypeRef: "TypeRef", StringRef: "StringRef", Collection: "Collection", Dictionary: "Dictionary",
	Enumerable: "Enumerable", Tuple: "Tuple", KeyValuePair: "KeyValuePair",
	SerializationInfo: "SerializationInfo", EndOfList: "EndOfList", Array: "Array",
	Box: "Box", TypedValue: "TypedValue", EntityRef: "EntityRef",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	if t.IsArray() {
		if name, ok := tagNames[t.Element()]; ok {
			return name + "[]"
		}
	}
	if t.IsCustom() {
		return fmt.Sprintf("Custom(%d)", t.CustomCode())
	}
	return fmt.Sprintf("Tag(%d)", uint32(t))
}
