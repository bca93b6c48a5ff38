// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package binlog defines the binary log file format, an ordered stream of
// build events recorded live during a build and replayed later.
//
// A binary log file consists of a fixed header followed by a compressed body:
//
//	header: "BLOG" | FormatVersion u16 | MinReaderVersion u16 |
//	        Compression u8 | Flags u8
//	body:   record* EndOfFile
//	record: VarInt(kind) | VarInt(payload length) | payload
//	payload: VarInt(field flags) | common fields | kind fields
//
// Each record declares its payload length, so a reader can skip a record it
// does not understand without decoding it. The header's MinReaderVersion
// names the oldest reader able to parse the file; older readers refuse it
// with an UnsupportedVersion error unless forward compatibility is
// explicitly requested, in which case unknown records are skipped and
// reported through ReaderOptions.OnRecoverableError.
//
// Records are written in the order events were raised, and can only be read
// in a single forward pass: string records define table entries that later
// records reference by Handle.
//
// The body may be compressed with gzip (the default), snappy, zstd or lz4,
// or left uncompressed.
package binlog
