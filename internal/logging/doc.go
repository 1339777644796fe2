// Package logging wraps log/slog with the project's handlers and attribute
// helpers.
package logging
