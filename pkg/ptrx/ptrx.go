// Package ptrx converts between values and pointers for optional fields.
package ptrx

import "time"

// To returns a pointer to v.
func To[T any](v T) *T {
	return &v
}

// Value dereferences p, returning the zero value for nil.
func Value[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// String returns a pointer value for the string value passed in.
func String(v string) *string {
	return &v
}

// StringValue returns the value of the string pointer passed in or
// "" if the pointer is nil.
func StringValue(v *string) string {
	return Value(v)
}

// NonEmpty returns a pointer to v, or nil when v is empty.
func NonEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Time returns a pointer value for the time.Time value passed in.
func Time(v time.Time) *time.Time {
	return &v
}

// TimeValue returns the value of the time.Time pointer passed in or
// time.Time{} if the pointer is nil.
func TimeValue(v *time.Time) time.Time {
	return Value(v)
}
