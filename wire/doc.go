// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package wire implements the primitive codec shared by the binary log and
// tree snapshot formats.
//
// Integers are written as VarInts: 7 bits of payload per byte, least
// significant group first, with the high bit of each byte set when another
// byte follows. 32-bit values occupy 1-5 bytes; negative values are written
// as their unsigned 32-bit pattern, so -1 always costs 5 bytes
// (FF FF FF FF 0F). 64-bit values (timestamp ticks) occupy 1-10 bytes.
//
// Byte blocks are written as VarInt(len+1) followed by the data. A length of
// zero denotes an absent (nil) block, which keeps absent and empty blocks
// distinguishable. Strings are written as VarInt(len) followed by their
// UTF-8 bytes.
//
// A Decoder never returns a partial value: if the stream ends in the middle
// of a value, it fails with a formaterr.TruncatedData error.
package wire
