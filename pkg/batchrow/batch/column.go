package batch

import (
	"database/sql"
	"time"
	"unicode/utf8"
	"unsafe"

	"github.com/pkg/errors"
)

// Indicator travels beside every row slot. It holds NullData for an absent value and the data length otherwise.
// After a truncated fetch it holds the full length of the value the server sent.
type Indicator int64

// NullData marks a slot as holding no value.
const NullData Indicator = -1

// Type tags the element type of a buffer.
type Type int

const (
	TypeInt32 Type = iota + 1
	TypeInt64
	TypeFloat64
	TypeBool
	TypeString
	TypeBytes
	TypeTime
)

func (t Type) String() string {
	switch t {
	case TypeInt32:
		return "INT32"
	case TypeInt64:
		return "INT64"
	case TypeFloat64:
		return "FLOAT64"
	case TypeBool:
		return "BOOL"
	case TypeString:
		return "STRING"
	case TypeBytes:
		return "BYTES"
	case TypeTime:
		return "TIME"
	default:
		return "UNKNOWN"
	}
}

// Value lists the element types a Column can hold.
type Value interface {
	int32 | int64 | float64 | bool | string | []byte | time.Time
}

// Buffer is a column or parameter array bound to a statement. It is implemented by Column only.
type Buffer interface {
	Type() Type
	Cap() int
	Len() int
	Stride() int

	scan(i int, src any) (truncated bool, err error)
	null(i int)
	value(i int) any
	setLen(n int)
}

// Column is a fixed capacity array of T with one indicator per slot. A new column starts with every slot null.
// Reads are refused past Len, which the owning statement moves after every round.
type Column[T Value] struct {
	typ   Type
	data  []T
	ind   []Indicator
	width int
	n     int
}

// NewColumn allocates a column of capacity slots. Strings and byte slices are not length limited; use
// NewStringColumn or NewBytesColumn for a fixed element width.
func NewColumn[T Value](capacity int) (*Column[T], error) {
	if capacity < 1 {
		return nil, errors.Wrapf(ErrCapacity, "capacity %d", capacity)
	}

	c := &Column[T]{
		typ:  typeOf[T](),
		data: make([]T, capacity),
		ind:  make([]Indicator, capacity),
	}

	for i := range c.ind {
		c.ind[i] = NullData
	}

	return c, nil
}

// NewStringColumn allocates a string column whose elements hold at most width bytes. Longer fetched values are
// truncated on a rune boundary and their row is reported as SuccessWithInfo.
func NewStringColumn(capacity, width int) (*Column[string], error) {
	return newWidthColumn[string](capacity, width)
}

// NewBytesColumn is the []byte counterpart of NewStringColumn.
func NewBytesColumn(capacity, width int) (*Column[[]byte], error) {
	return newWidthColumn[[]byte](capacity, width)
}

func newWidthColumn[T string | []byte](capacity, width int) (*Column[T], error) {
	if width < 1 {
		return nil, errors.Wrapf(ErrCapacity, "element width %d", width)
	}

	c, err := NewColumn[T](capacity)
	if err != nil {
		return nil, err
	}

	c.width = width

	return c, nil
}

func typeOf[T Value]() Type {
	var zero T

	switch any(zero).(type) {
	case int32:
		return TypeInt32
	case int64:
		return TypeInt64
	case float64:
		return TypeFloat64
	case bool:
		return TypeBool
	case string:
		return TypeString
	case []byte:
		return TypeBytes
	default:
		return TypeTime
	}
}

func (c *Column[T]) Type() Type { return c.typ }

// Cap is the number of slots, fixed at construction.
func (c *Column[T]) Cap() int { return len(c.data) }

// Len is the number of slots holding defined values.
func (c *Column[T]) Len() int { return c.n }

// Stride is the element width in bytes: the declared width for strings and byte slices, the in-memory size
// otherwise.
func (c *Column[T]) Stride() int {
	if c.width > 0 {
		return c.width
	}

	var zero T

	return int(unsafe.Sizeof(zero))
}

// Get returns the value in slot i. ok is false for a null slot, in which case v is the zero value.
func (c *Column[T]) Get(i int) (v T, ok bool, err error) {
	if i < 0 || i >= c.n {
		return v, false, errors.Wrapf(ErrRowIndex, "row %d, %d valid", i, c.n)
	}

	if c.ind[i] == NullData {
		return v, false, nil
	}

	return c.data[i], true, nil
}

// Indicator returns the indicator of slot i.
func (c *Column[T]) Indicator(i int) (Indicator, error) {
	if i < 0 || i >= c.n {
		return NullData, errors.Wrapf(ErrRowIndex, "row %d, %d valid", i, c.n)
	}

	return c.ind[i], nil
}

// IsNull reports whether slot i is null. Slots past Len count as null.
func (c *Column[T]) IsNull(i int) bool {
	return i < 0 || i >= c.n || c.ind[i] == NullData
}

// Set stores v in slot i and extends Len to cover it.
func (c *Column[T]) Set(i int, v T) error {
	if i < 0 || i >= len(c.data) {
		return errors.Wrapf(ErrRowIndex, "row %d, capacity %d", i, len(c.data))
	}

	size := c.sizeOf(v)
	if c.width > 0 && size > c.width {
		return errors.Wrapf(ErrValueTooLong, "row %d: %d bytes, width %d", i, size, c.width)
	}

	c.data[i] = v
	c.ind[i] = Indicator(size)
	c.extend(i)

	return nil
}

// SetNull marks slot i as null and extends Len to cover it.
func (c *Column[T]) SetNull(i int) error {
	if i < 0 || i >= len(c.data) {
		return errors.Wrapf(ErrRowIndex, "row %d, capacity %d", i, len(c.data))
	}

	c.null(i)
	c.extend(i)

	return nil
}

func (c *Column[T]) extend(i int) {
	if i >= c.n {
		c.n = i + 1
	}
}

func (c *Column[T]) sizeOf(v T) int {
	switch x := any(v).(type) {
	case string:
		return len(x)
	case []byte:
		return len(x)
	default:
		return int(unsafe.Sizeof(v))
	}
}

// scan assigns a driver value to slot i using the database/sql conversion rules.
func (c *Column[T]) scan(i int, src any) (bool, error) {
	var n sql.Null[T]

	if err := n.Scan(src); err != nil {
		c.null(i)

		return false, err
	}

	if !n.Valid {
		c.null(i)

		return false, nil
	}

	size := c.sizeOf(n.V)
	c.ind[i] = Indicator(size)

	if c.width > 0 && size > c.width {
		c.data[i] = truncate(n.V, c.width)

		return true, nil
	}

	c.data[i] = n.V

	return false, nil
}

func truncate[T Value](v T, width int) T {
	switch x := any(v).(type) {
	case string:
		cut := width
		for cut > 0 && !utf8.RuneStart(x[cut]) {
			cut--
		}

		return any(x[:cut]).(T)
	case []byte:
		return any(x[:width:width]).(T)
	default:
		return v
	}
}

func (c *Column[T]) null(i int) {
	var zero T

	c.data[i] = zero
	c.ind[i] = NullData
}

// value is the driver argument for slot i. Null slots go to the server as NULL.
func (c *Column[T]) value(i int) any {
	if c.ind[i] == NullData {
		return nil
	}

	return c.data[i]
}

func (c *Column[T]) setLen(n int) {
	c.n = n
}
