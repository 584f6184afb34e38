package decode

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// fieldReader pulls typed fields out of a payload object, recording the
// first failure. A missing or uncoercible field invalidates the event.
type fieldReader struct {
	typeName string
	index    int
	payload  map[string]json.RawMessage
	err      error
}

func (p *fieldReader) fail(key, reason string) {
	if p.err == nil {
		p.err = &DecodeError{
			TypeName: p.typeName,
			Index:    p.index,
			Reason:   fmt.Sprintf("field %q: %s", key, reason),
		}
	}
}

func (p *fieldReader) raw(key string) (json.RawMessage, bool) {
	v, ok := p.payload[key]
	if !ok {
		p.fail(key, "missing")
	}
	return v, ok
}

func (p *fieldReader) str(key string) string {
	v, ok := p.raw(key)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		p.fail(key, "not a string")
		return ""
	}
	return s
}

func (p *fieldReader) boolean(key string) bool {
	v, ok := p.raw(key)
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		p.fail(key, "not a bool")
		return false
	}
	return b
}

// u64 coerces a JSON number or numeric string to uint64. On-chain amounts
// exceed float64 precision, so strings are the preferred wire form.
func (p *fieldReader) u64(key string) uint64 {
	v, ok := p.raw(key)
	if !ok {
		return 0
	}

	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			p.fail(key, "not an unsigned integer")
			return 0
		}
		return n
	}

	var num json.Number
	if err := json.Unmarshal(v, &num); err != nil {
		p.fail(key, "not a number")
		return 0
	}
	n, err := strconv.ParseUint(num.String(), 10, 64)
	if err != nil {
		// Scientific notation from lossy producers still parses as float.
		f, ferr := num.Float64()
		if ferr != nil || f < 0 {
			p.fail(key, "not an unsigned integer")
			return 0
		}
		return uint64(f)
	}
	return n
}
