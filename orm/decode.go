package orm

import (
	"fmt"
	"reflect"
	"time"

	"github.com/zigcms/core/errs"
)

// setField decodes one raw database value (as returned by *sql.Rows.Scan
// into an interface{}, per database/sql's usual int64/float64/bool/
// []byte/string/time.Time/nil shapes) into the struct field addressed by
// fv, dispatching on the field's own declared Go type rather than on the
// database's declared column type — a static Model's field type is the
// authoritative semantic type per this field, matching spec table
// "Target type" -> decoding rule.
func setField(fv reflect.Value, raw interface{}) error {
	switch ptr := fv.Addr().Interface().(type) {
	case *int64:
		v, err := toInt64(raw)
		if err != nil {
			return err
		}
		*ptr = v
	case *int32:
		v, err := toInt64(raw)
		if err != nil {
			return err
		}
		*ptr = int32(v)
	case *float64:
		v, err := toFloat64(raw)
		if err != nil {
			return err
		}
		*ptr = v
	case *bool:
		v, err := toBool(raw)
		if err != nil {
			return err
		}
		*ptr = v
	case *string:
		*ptr = toString(raw)
	case *time.Time:
		v, err := toTime(raw)
		if err != nil {
			return err
		}
		*ptr = v
	case *Optional[int64]:
		if raw == nil {
			*ptr = None[int64]()
			return nil
		}
		v, err := toInt64(raw)
		if err != nil {
			return err
		}
		*ptr = Some(v)
	case *Optional[float64]:
		if raw == nil {
			*ptr = None[float64]()
			return nil
		}
		v, err := toFloat64(raw)
		if err != nil {
			return err
		}
		*ptr = Some(v)
	case *Optional[bool]:
		if raw == nil {
			*ptr = None[bool]()
			return nil
		}
		v, err := toBool(raw)
		if err != nil {
			return err
		}
		*ptr = Some(v)
	case *Optional[string]:
		if raw == nil {
			*ptr = None[string]()
			return nil
		}
		*ptr = Some(toString(raw))
	case *Optional[time.Time]:
		if raw == nil {
			*ptr = None[time.Time]()
			return nil
		}
		v, err := toTime(raw)
		if err != nil {
			return err
		}
		*ptr = Some(v)
	default:
		return fmt.Errorf("orm: unsupported field type %s", fv.Type())
	}
	return nil
}

// fieldArg returns the value to bind when writing fv into an INSERT or
// UPDATE statement, along with whether the column should be written as
// NULL.
func fieldArg(fv reflect.Value) (arg interface{}, isNull bool, err error) {
	switch v := fv.Interface().(type) {
	case int64:
		return v, false, nil
	case int32:
		return int64(v), false, nil
	case float64:
		return v, false, nil
	case bool:
		return v, false, nil
	case string:
		return v, false, nil
	case time.Time:
		return v.Unix(), false, nil
	case Optional[int64]:
		if val, ok := v.Get(); ok {
			return val, false, nil
		}
		return nil, true, nil
	case Optional[float64]:
		if val, ok := v.Get(); ok {
			return val, false, nil
		}
		return nil, true, nil
	case Optional[bool]:
		if val, ok := v.Get(); ok {
			return val, false, nil
		}
		return nil, true, nil
	case Optional[string]:
		if val, ok := v.Get(); ok {
			return val, false, nil
		}
		return nil, true, nil
	case Optional[time.Time]:
		if val, ok := v.Get(); ok {
			return val.Unix(), false, nil
		}
		return nil, true, nil
	default:
		return nil, false, fmt.Errorf("orm: unsupported field type %s", fv.Type())
	}
}

func toInt64(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, fmt.Errorf("orm: decoding integer column: %w", errs.ErrNullForNonNullable)
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return parseInt64(string(v))
	case string:
		return parseInt64(v)
	case time.Time:
		return v.Unix(), nil
	default:
		return 0, fmt.Errorf("orm: decoding %T as integer: %w", raw, errs.ErrTypeMismatch)
	}
}

func toFloat64(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, fmt.Errorf("orm: decoding float column: %w", errs.ErrNullForNonNullable)
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case []byte:
		return parseFloat64(string(v))
	case string:
		return parseFloat64(v)
	default:
		return 0, fmt.Errorf("orm: decoding %T as float: %w", raw, errs.ErrTypeMismatch)
	}
}

func toBool(raw interface{}) (bool, error) {
	switch v := raw.(type) {
	case nil:
		return false, fmt.Errorf("orm: decoding bool column: %w", errs.ErrNullForNonNullable)
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case []byte:
		return string(v) == "1" || string(v) == "true", nil
	case string:
		return v == "1" || v == "true", nil
	default:
		return false, fmt.Errorf("orm: decoding %T as bool: %w", raw, errs.ErrTypeMismatch)
	}
}

func toString(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toTime(raw interface{}) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case []byte:
		n, err := parseInt64(string(v))
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(n, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("orm: cannot decode %T as timestamp", raw)
	}
}

func parseInt64(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("orm: parsing %q as integer: %w", s, err)
	}
	return n, nil
}

func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	if err != nil {
		return 0, fmt.Errorf("orm: parsing %q as float: %w", s, err)
	}
	return f, nil
}
