// Package frame turns an unbounded byte stream into self-terminating,
// length-prefixed chunks and back.
//
// Every chunk is written as a length prefix followed by its bytes. Empty
// chunks are dropped; a single zero-length frame (the byte 0x00) follows the
// last real chunk and ends the stream. Prefix widths:
//
//	00xxxxxx                       0 .. 63
//	10xxxxxx yyyyyyyy              64 .. 16383
//	110xxxxx yyyyyyyy zzzzzzzz     16384 .. 2097151
//	111xxxxx                       2^(x+7), preferred for every power of two >= 128
//
// Chunks the table can't describe in one frame are cut into 1 MiB frames.
package frame
