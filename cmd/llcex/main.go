/*
Copyright © 2019 the LLCex authors.
This file is part of LLCex.

LLCex is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

LLCex is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with LLCex.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command llcex is a command-line interface for extracting regions of
// ocean-model output to NetCDF file trees.
package main

import (
	"fmt"
	"os"

	"github.com/oceanmodeling/llcex/llcexutil"
)

func main() {
	if err := llcexutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
