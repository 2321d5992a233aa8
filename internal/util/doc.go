// Package util provides generic utility functions for this service.
//
// It includes slice operations, pointer helpers, map utilities, string
// sanitization, and common validation helpers.
package util
