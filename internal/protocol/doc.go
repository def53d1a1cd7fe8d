// Package protocol owns the bottle wire contract shared by every codec.
//
// Ownership boundary:
// - error taxonomy (truncation, protocol violation, configuration, cap validation)
// - bottle type codes and sub-stream marker bytes
//
// The codecs themselves live in subpackages:
// - source: pull-based byte source with a running position
// - frame: variable-length framing of raw byte streams
// - buffered: chunk coalescing upstream of framing
// - header: typed header fields
// - bottlecap: the fixed preamble of every bottle
package protocol
