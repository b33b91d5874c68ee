// Package logging builds the slog loggers shelfarr writes with.
//
// Output is either a one-line console format that hoists job id and component
// into the prefix, or JSON with ts/level/msg keys. A configured log file is
// rotated through lumberjack and mirrored to the console.
package logging
