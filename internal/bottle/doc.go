// Package bottle multiplexes raw byte streams and nested bottles into one
// flat, self-delimiting byte stream, and parses them back out lazily.
//
// A serialized bottle is its cap, then for each sub-stream a marker byte
// (0x40 raw, 0x80 nested bottle) followed by that sub-stream's bytes, then
// the end marker 0xc0. Raw sub-streams are framed (see package frame);
// nested bottles are serialized recursively.
//
// # Single cursor
//
// Every bottle in a tree reads from the same forward-only source, so at most
// one sub-stream is live at a time. Next does not read the next marker until
// the sub-stream it handed out last has reported completion: a raw stream
// when its terminator frame has been read, a nested bottle when its own end
// marker has been read.
//
// # Deadlock contract
//
// A caller that receives a sub-stream must either drain it or hand it to
// Discard before asking for the next one. If it does neither, Next blocks
// until its context is done, then returns an error wrapping ErrAbandoned and
// the context's error. An abandoned bottle (and any parent waiting on it) is
// unusable: the source cursor is at an unknown position, and the only safe
// recovery is to close the transport and discard the whole tree.
//
// A raw sub-stream that carried zero bytes is indistinguishable on the wire
// from one whose producer never wrote anything; both read back as an empty
// RawStream.
package bottle
