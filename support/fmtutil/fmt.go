// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package fmtutil contains helpers for rendering binary data in diagnostics.
package fmtutil

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MaxHexSliceBytes is the number of bytes a HexSlice renders before eliding
// the rest.
const MaxHexSliceBytes = 16

// HexSlice is a byte slice that renders as a hex byte array literal, such as
// "[4]byte{0x42, 0x4C, 0x4F, 0x47}", instead of the default decimal bytes.
//
// Only the first MaxHexSliceBytes bytes are rendered.
type HexSlice []byte

func (hs HexSlice) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d]byte{", len(hs))
	for i, b := range hs {
		if i == MaxHexSliceBytes {
			sb.WriteString(", ...")
			break
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "0x%02X", b)
	}
	sb.WriteByte('}')
	return sb.String()
}

// Dump returns a hex dump of at most limit bytes of b, with each line
// indented by prefix. If limit is <= 0, all of b is dumped.
//
// If b was cut short, a final line notes how many bytes were omitted.
func Dump(b []byte, prefix string, limit int) string {
	omitted := 0
	if limit > 0 && len(b) > limit {
		b, omitted = b[:limit], len(b)-limit
	}

	var sb strings.Builder
	for _, line := range strings.SplitAfter(hex.Dump(b), "\n") {
		if line != "" {
			sb.WriteString(prefix)
			sb.WriteString(line)
		}
	}
	if omitted > 0 {
		fmt.Fprintf(&sb, "%s(%d more byte(s))\n", prefix, omitted)
	}
	return sb.String()
}
