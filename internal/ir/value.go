package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"unicode/utf16"
)

// IRValue is the closed set of values that may appear in future arguments,
// static call results and strategy configs. Floats are not representable;
// integers wider than int64 travel as decimal IRString values.
type IRValue interface {
	irValue()
}

// IRNull is JSON null.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString is a string value. Addresses, hex data and big integers are strings.
type IRString string

func (IRString) irValue() {}

// IRInt is an int64 value.
type IRInt int64

func (IRInt) irValue() {}

// IRBool is a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray is an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject maps string keys to values. Iterate with SortedKeys.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// BigIntValue renders n as a decimal IRString.
func BigIntValue(n *big.Int) IRString {
	if n == nil {
		return IRString("0")
	}
	return IRString(n.String())
}

// ToBigInt interprets v as an integer. IRInt, decimal strings and 0x-prefixed
// hex strings are accepted.
func ToBigInt(v IRValue) (*big.Int, error) {
	switch val := v.(type) {
	case IRInt:
		return big.NewInt(int64(val)), nil
	case IRString:
		s := strings.TrimSpace(string(val))
		n := new(big.Int)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			if _, ok := n.SetString(s[2:], 16); !ok {
				return nil, fmt.Errorf("invalid hex integer %q", s)
			}
			return n, nil
		}
		if _, ok := n.SetString(s, 10); !ok {
			return nil, fmt.Errorf("invalid decimal integer %q", s)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("expected integer, got %T", v)
	}
}

// SortedKeys returns the object's keys in RFC 8785 order (UTF-16 code units,
// which differs from Go's byte-wise string order outside the BMP).
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// MarshalJSON writes the object with keys in SortedKeys order. A nil object
// is null.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	if obj == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON writes each element with MarshalIRValue. A nil array is null.
func (arr IRArray) MarshalJSON() ([]byte, error) {
	if arr == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalIRValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*obj = nil
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*obj = make(IRObject, len(raw))
	for k, v := range raw {
		val, err := decodeValue(v)
		if err != nil {
			return fmt.Errorf("object key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*arr = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*arr = make(IRArray, len(raw))
	for i, v := range raw {
		val, err := decodeValue(v)
		if err != nil {
			return fmt.Errorf("array index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// decodeValue is the lenient decoder used for persisted data: null becomes
// IRNull so values written by MarshalIRValue read back unchanged.
func decodeValue(data []byte) (IRValue, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return IRString(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return IRBool(b), nil
	case 'n':
		return IRNull{}, nil
	case '[':
		var arr IRArray
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		return arr, nil
	case '{':
		var obj IRObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return obj, nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		i, err := n.Int64()
		if err != nil {
			if isIntegerLiteral(string(n)) {
				return IRString(string(n)), nil
			}
			return nil, fmt.Errorf("floats are not allowed: %s", string(data))
		}
		return IRInt(i), nil
	}
}

func isIntegerLiteral(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MarshalIRValue encodes v as JSON. Object keys come out sorted, but strings
// are not NFC normalized; use MarshalCanonical when comparing values.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRArray:
		return val.MarshalJSON()
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// UnmarshalIRValue decodes user-supplied JSON (parameter files, literal
// arguments). Floats and null are rejected; integers beyond int64 become
// decimal strings.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}

// FromGo converts decoded JSON or YAML data into an IRValue.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid value")
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		return BigIntValue(new(big.Int).SetUint64(val)), nil
	case *big.Int:
		return BigIntValue(val), nil
	case json.Number:
		s := string(val)
		if !isIntegerLiteral(s) {
			return nil, fmt.Errorf("floats are not allowed: %s", s)
		}
		if n, err := val.Int64(); err == nil {
			return IRInt(n), nil
		}
		return IRString(s), nil
	case float64, float32:
		return nil, fmt.Errorf("floats are not allowed: %v", val)
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// Any carries a single, possibly absent, IRValue through encoding/json.
type Any struct {
	Value IRValue
}

// MarshalJSON implements json.Marshaler.
func (a Any) MarshalJSON() ([]byte, error) {
	return MarshalIRValue(a.Value)
}

// UnmarshalJSON implements json.Unmarshaler. null leaves Value nil.
func (a *Any) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		a.Value = nil
		return nil
	}
	v, err := decodeValue(data)
	if err != nil {
		return err
	}
	a.Value = v
	return nil
}
