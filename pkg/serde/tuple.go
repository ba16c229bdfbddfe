package serde

// tuple 与 keyValue 为标记接口，写出时据此识别元组与键值对。
type tuple interface{ isTuple() }

type keyValue interface{ isKeyValue() }

// KeyValue 为单个键值对，以 KeyValuePair 标签写出。
type KeyValue[K, V any] struct {
	Key   K
	Value V
}

func (KeyValue[K, V]) isKeyValue() {}

func KV[K, V any](k K, v V) KeyValue[K, V] { return KeyValue[K, V]{Key: k, Value: v} }

// Tuple1 至 Tuple8 为定长元组，各项依次写出。

type Tuple1[T1 any] struct {
	V1 T1
}

type Tuple2[T1, T2 any] struct {
	V1 T1
	V2 T2
}

type Tuple3[T1, T2, T3 any] struct {
	V1 T1
	V2 T2
	V3 T3
}

type Tuple4[T1, T2, T3, T4 any] struct {
	V1 T1
	V2 T2
	V3 T3
	V4 T4
}

type Tuple5[T1, T2, T3, T4, T5 any] struct {
	V1 T1
	V2 T2
	V3 T3
	V4 T4
	V5 T5
}

type Tuple6[T1, T2, T3, T4, T5, T6 any] struct {
	V1 T1
	V2 T2
	V3 T3
	V4 T4
	V5 T5
	V6 T6
}

type Tuple7[T1, T2, T3, T4, T5, T6, T7 any] struct {
	V1 T1
	V2 T2
	V3 T3
	V4 T4
	V5 T5
	V6 T6
	V7 T7
}

type Tuple8[T1, T2, T3, T4, T5, T6, T7, T8 any] struct {
	V1 T1
	V2 T2
	V3 T3
	V4 T4
	V5 T5
	V6 T6
	V7 T7
	V8 T8
}

func (Tuple1[T1]) isTuple()                             {}
func (Tuple2[T1, T2]) isTuple()                         {}
func (Tuple3[T1, T2, T3]) isTuple()                     {}
func (Tuple4[T1, T2, T3, T4]) isTuple()                 {}
func (Tuple5[T1, T2, T3, T4, T5]) isTuple()             {}
func (Tuple6[T1, T2, T3, T4, T5, T6]) isTuple()         {}
func (Tuple7[T1, T2, T3, T4, T5, T6, T7]) isTuple()     {}
func (Tuple8[T1, T2, T3, T4, T5, T6, T7, T8]) isTuple() {}

func Pair[T1, T2 any](v1 T1, v2 T2) Tuple2[T1, T2] { return Tuple2[T1, T2]{V1: v1, V2: v2} }

func Triple[T1, T2, T3 any](v1 T1, v2 T2, v3 T3) Tuple3[T1, T2, T3] {
	return Tuple3[T1, T2, T3]{V1: v1, V2: v2, V3: v3}
}
