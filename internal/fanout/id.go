package fanout

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ID identifies a user or a group. Clients send ids either as JSON numbers or
// as JSON strings; both decode to the same key. Integral numbers are kept in
// plain digits, so 1, 1.0 and 1e0 are the same id. Strings are kept verbatim.
// Ids made only of decimal digits encode back as JSON numbers, everything
// else as strings.
type ID string

func (id ID) String() string {
	return string(id)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or a string: %w", err)
	}
	*id = ID(canonicalNumber(n))
	return nil
}

// canonicalNumber writes integral numbers as plain digits. Fractions and
// integers beyond float64 precision keep their literal form.
func canonicalNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return n.String()
	}
	return strconv.FormatInt(int64(f), 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// numeric reports whether id is a valid JSON integer literal without sign.
func (id ID) numeric() bool {
	if id == "" || (len(id) > 1 && id[0] == '0') {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}
