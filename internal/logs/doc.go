// Package logs reads the banana3d log file for the `banana3d logs` command.
//
// Last returns the final lines of a file with bounded memory, and Follow
// streams lines appended after a byte offset until its context ends. A file
// that shrinks below the offset is treated as rotated and read from the start.
package logs
