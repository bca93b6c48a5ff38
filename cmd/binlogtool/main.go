// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/danjacques/gobinlog/app/binlogtool"
)

func main() {
	os.Exit(binlogtool.Main(os.Args[1:]))
}
