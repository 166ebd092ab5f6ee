package batch

// RowStatus is the outcome of one row slot in a transfer round.
type RowStatus int

const (
	RowSuccess RowStatus = iota
	RowSuccessWithInfo
	RowError
	// RowNoRow marks slots past the end of a short round.
	RowNoRow
	RowUpdated
	RowDeleted
)

func (s RowStatus) String() string {
	switch s {
	case RowSuccess:
		return "SUCCESS"
	case RowSuccessWithInfo:
		return "SUCCESS_WITH_INFO"
	case RowError:
		return "ERROR"
	case RowNoRow:
		return "NOROW"
	case RowUpdated:
		return "UPDATED"
	case RowDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether the row holds data the caller may read.
func (s RowStatus) Valid() bool {
	return s == RowSuccess || s == RowSuccessWithInfo
}

// ParamStatus is the outcome of one parameter set in a batch execute.
type ParamStatus int

const (
	ParamSuccess ParamStatus = iota
	ParamError
	// ParamUnused marks parameter sets that were not run, either because they are past the paramset size or
	// because an earlier set failed in an atomic batch.
	ParamUnused
)

func (s ParamStatus) String() string {
	switch s {
	case ParamSuccess:
		return "SUCCESS"
	case ParamError:
		return "ERROR"
	case ParamUnused:
		return "UNUSED"
	default:
		return "UNKNOWN"
	}
}

// Round is the result of one Fetch call.
type Round struct {
	// Count is the number of rows transferred. Zero means the result set is exhausted.
	Count int
	// Status holds one entry per transferred row.
	Status []RowStatus
}

// Valid reports whether row i of the round holds readable data.
func (r Round) Valid(i int) bool {
	return i >= 0 && i < r.Count && r.Status[i].Valid()
}
