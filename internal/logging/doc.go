// Package logging builds the structured slog logger used by the levelauth server.
package logging
