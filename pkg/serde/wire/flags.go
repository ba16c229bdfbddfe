package wire

// CollectionFlags 描述 Collection 与 Enumerable 的编码方式。
type CollectionFlags uint8

const (
	// CollectionTyped 表示标志之后写出了集合的运行时类型。
	CollectionTyped CollectionFlags = 1 << iota
	// CollectionElementTypeTagged 表示元素标签只写一次，元素本身为裸编码。
	CollectionElementTypeTagged
	// CollectionValueTagged 表示每个元素各自带标签。
	CollectionValueTagged
	// CollectionSet 表示集合语义为集合（无重复元素）。
	CollectionSet
)

func (f CollectionFlags) Has(bit CollectionFlags) bool { return f&bit != 0 }

// DictionaryFlags 描述 Dictionary 的编码方式。
type DictionaryFlags uint8

const (
	DictionaryTyped DictionaryFlags = 1 << iota
	DictionaryKeyTypeTagged
	DictionaryKeyValueTagged
	DictionaryValueTypeTagged
	DictionaryValueValueTagged
)

func (f DictionaryFlags) Has(bit DictionaryFlags) bool { return f&bit != 0 }

// ArrayFlags 描述多维定长数组：低 6 位为维数，其余为标志位。
type ArrayFlags uint16

const (
	ArrayRankMask ArrayFlags = 0x3f
	// ArrayNoExtraTag 表示元素标签只写一次，元素为裸编码。
	ArrayNoExtraTag ArrayFlags = 1 << 6
	// ArrayElementTagged 表示每个元素各自带标签。
	ArrayElementTagged ArrayFlags = 1 << 7
	ArrayTyped         ArrayFlags = 1 << 8
)

// MaxRank 为支持的最大维数。
const MaxRank = 32

// MakeArrayFlags 以维数 rank 与标志位组合出 ArrayFlags。
func MakeArrayFlags(rank int, bits ArrayFlags) ArrayFlags {
	return ArrayFlags(rank)&ArrayRankMask | bits&^ArrayRankMask
}

func (f ArrayFlags) Rank() int { return int(f & ArrayRankMask) }

func (f ArrayFlags) Has(bit ArrayFlags) bool { return f&bit != 0 }

// TypeKind 为 Type 标签之后类型描述的种类字节。
type TypeKind byte

const (
	// TypeNamed 后随包路径与类型名。
	TypeNamed TypeKind = iota
	// TypeCode 后随显式注册的类型编号。
	TypeCode
	TypePointer
	TypeSlice
	// TypeArray 后随长度与元素类型。
	TypeArray
	TypeMap
)

// TimeKind 为时间负载中的时区种类字节。
type TimeKind byte

const (
	TimeUTC TimeKind = iota
	TimeLocal
	// TimeLocalNormalized 表示本地时间在写出时已归一化为 UTC。
	TimeLocalNormalized
	// TimeOffset 后随以秒计的 zigzag 时区偏移。
	TimeOffset
)
