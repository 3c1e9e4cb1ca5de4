package dynamicrud

import "fmt"

// Kind discriminates the variant held by a FieldValue.
type Kind int

const (
	KindNull Kind = iota
	KindInt64
	KindFloat64
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// FieldValue is a tagged union over the handful of concrete types a
// dynamically addressed row's column can hold. Callers switch on Kind
// rather than attempting a type assertion against an empty interface.
type FieldValue struct {
	kind Kind
	i64  int64
	f64  float64
	str  string
	b    bool
}

func NullValue() FieldValue               { return FieldValue{kind: KindNull} }
func Int64Value(v int64) FieldValue       { return FieldValue{kind: KindInt64, i64: v} }
func Float64Value(v float64) FieldValue   { return FieldValue{kind: KindFloat64, f64: v} }
func StringValue(v string) FieldValue     { return FieldValue{kind: KindString, str: v} }
func BoolValue(v bool) FieldValue         { return FieldValue{kind: KindBool, b: v} }

func (f FieldValue) Kind() Kind { return f.kind }
func (f FieldValue) IsNull() bool { return f.kind == KindNull }

func (f FieldValue) Int64() (int64, error) {
	if f.kind != KindInt64 {
		return 0, fmt.Errorf("fieldvalue: Int64 called on a %s value", f.kind)
	}
	return f.i64, nil
}

func (f FieldValue) Float64() (float64, error) {
	if f.kind != KindFloat64 {
		return 0, fmt.Errorf("fieldvalue: Float64 called on a %s value", f.kind)
	}
	return f.f64, nil
}

func (f FieldValue) String() (string, error) {
	if f.kind != KindString {
		return "", fmt.Errorf("fieldvalue: String called on a %s value", f.kind)
	}
	return f.str, nil
}

func (f FieldValue) Bool() (bool, error) {
	if f.kind != KindBool {
		return false, fmt.Errorf("fieldvalue: Bool called on a %s value", f.kind)
	}
	return f.b, nil
}

// Raw returns the value boxed as an interface{} suitable for passing
// straight to database/sql as a bound parameter.
func (f FieldValue) Raw() interface{} {
	switch f.kind {
	case KindNull:
		return nil
	case KindInt64:
		return f.i64
	case KindFloat64:
		return f.f64
	case KindString:
		return f.str
	case KindBool:
		return f.b
	default:
		return nil
	}
}

// Row is one dynamically addressed record: column name to FieldValue.
type Row map[string]FieldValue
