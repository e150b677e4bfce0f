package chunk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ModuleID identifies a module to the runtime loader. Ids are either numeric or
// string valued and are only minted by a Context.
type ModuleID struct {
	str   string
	num   uint64
	isNum bool
}

// MaxNumberID is the largest numeric id a JS number represents exactly
// (Number.MAX_SAFE_INTEGER).
const MaxNumberID = 1<<53 - 1

func NumberID(n uint64) ModuleID {
	return ModuleID{num: n, isNum: true}
}

func StringID(s string) ModuleID {
	return ModuleID{str: s}
}

func (id ModuleID) IsNumber() bool {
	return id.isNum
}

func (id ModuleID) Number() (uint64, bool) {
	return id.num, id.isNum
}

func (id ModuleID) IsZero() bool {
	return id == ModuleID{}
}

func (id ModuleID) Equal(other ModuleID) bool {
	return id == other
}

func (id ModuleID) String() string {
	if id.isNum {
		return strconv.FormatUint(id.num, 10)
	}
	return id.str
}

// Compare orders numeric ids before string ids, then by value.
func Compare(a, b ModuleID) int {
	switch {
	case a.isNum && !b.isNum:
		return -1
	case !a.isNum && b.isNum:
		return 1
	case a.isNum:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		default:
			return 0
		}
	default:
		return strings.Compare(a.str, b.str)
	}
}

func (id ModuleID) MarshalJSON() ([]byte, error) {
	if id.isNum {
		return []byte(strconv.FormatUint(id.num, 10)), nil
	}
	return json.Marshal(id.str)
}

func (id *ModuleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("module id must be a string or unsigned integer: %s", data)
	}
	*id = NumberID(n)
	return nil
}

// ParseID reads an id as written on the command line: digits up to
// MaxNumberID become a numeric id, anything else a string id.
func ParseID(value string) ModuleID {
	value = strings.TrimSpace(value)
	if n, err := strconv.ParseUint(value, 10, 64); err == nil && n <= MaxNumberID {
		return NumberID(n)
	}
	return StringID(value)
}
