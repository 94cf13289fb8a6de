package compute

// ElementType selects the kernel variant and the in-memory representation of
// tensor elements. The set is closed: float32 (IEEE-754), int32
// (two's-complement) and uint32.
type ElementType uint32

const (
	Float32 ElementType = iota
	Int32
	Uint32
)

// Stride returns the per-element byte size. All supported types are 4 bytes
// wide; they differ only in shader arithmetic.
func (t ElementType) Stride() uint32 { return 4 }

func (t ElementType) valid() bool { return t <= Uint32 }

func (t ElementType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	}
	return "invalid"
}

// Op is the element-wise binary operation applied per element pair. The op is
// passed to the kernel in its params block, so one pipeline per ElementType
// serves every op.
type Op uint32

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpMin
	OpMax
)

func (o Op) valid() bool { return o <= OpMax }

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpMin:
		return "min"
	case OpMax:
		return "max"
	}
	return "invalid"
}
