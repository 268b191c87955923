package crdt

// Kind tags the runtime type of a Data value (or, for the Float/Int/Str/Blob
// variants, a Prim). It doubles as part of a Map's composite key so the same
// name can address different CRDT kinds without colliding.
type Kind int

const (
	KindNil Kind = iota
	KindReg
	KindSet
	KindMap
	KindFloat
	KindInt
	KindStr
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindReg:
		return "reg"
	case KindSet:
		return "set"
	case KindMap:
		return "map"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindStr:
		return "str"
	case KindBlob:
		return "blob"
	default:
		return "unknown"
	}
}
