// Package persistence saves the writable properties of published objects
// so that they survive restarts.
//
// A snapshot maps object ids to property names and wire values. Restoring
// goes through the same conversion as a remote SetProperty, so stored JSON
// numbers convert back to the declared property types.
package persistence
