// Package convert converts between native Go values and wire values.
//
// Outbound, any native value becomes part of the wire value tree: numbers
// become float64, slices and arrays become []any, string-keyed maps become
// map[string]any, []byte becomes base64 text and time.Time RFC 3339 text.
// Published objects are handed to a caller-supplied ObjectFunc so the
// publisher can replace them with object references.
//
// Inbound, FromWire converts a wire value to the declared kind of a method
// parameter or property. Integers are rounded to nearest and range-checked.
// A null value yields the kind's zero value.
//
// Types the built-in rules do not cover get a Custom converter registered
// per reflect.Type.
package convert
