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

package llcexutil

import (
	"reflect"
	"testing"

	"github.com/oceanmodeling/llcex"
)

func TestOutputDescriptor(t *testing.T) {
	Cfg.Set("OutputDir", "/tmp/llcex-out")
	Cfg.Set("Prefix", "run1")
	Cfg.Set("Format", "CDF5")
	Cfg.Set("Overwrite", true)
	Cfg.Set("Variables", []string{"Theta"})
	Cfg.Set("Encoding.Dtype", "float64")

	out, err := outputDescriptor(Cfg)
	if err != nil {
		t.Fatal(err)
	}
	if out.Root != "/tmp/llcex-out" || out.Prefix != "run1" {
		t.Errorf("root/prefix: got %q/%q", out.Root, out.Prefix)
	}
	if out.Format != llcex.FormatCDF5 {
		t.Errorf("format: got %v", out.Format)
	}
	if !out.Overwrite {
		t.Error("overwrite was not set")
	}
	if got := out.Encoding["Theta"].Dtype; got != "float64" {
		t.Errorf("Theta dtype: got %q", got)
	}
	if out.Attrs["Conventions"] != "CF-1.6" {
		t.Errorf("Conventions attribute: got %q", out.Attrs["Conventions"])
	}
}

func TestRunConfig(t *testing.T) {
	Cfg.Set("Variables", []string{"Theta", "Salt"})
	Cfg.Set("ExtractGrid", false)
	Cfg.Set("Concatenate", "monthly")

	sel := llcex.IndexSelection{"j": llcex.Slice(0, 3)}
	cfg, err := runConfig(Cfg, sel)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg.Variables, []string{"Theta", "Salt"}) {
		t.Errorf("variables: got %v", cfg.Variables)
	}
	if cfg.ExtractGrid {
		t.Error("ExtractGrid was not unset")
	}
	if cfg.Concatenate != llcex.ModeMonthly {
		t.Errorf("mode: got %v", cfg.Concatenate)
	}
	if !reflect.DeepEqual(cfg.Selection, sel) {
		t.Errorf("selection: got %v", cfg.Selection)
	}

	Cfg.Set("Concatenate", "weekly")
	if _, err := runConfig(Cfg, nil); err == nil {
		t.Error("invalid concatenation mode should fail")
	}
	Cfg.Set("Concatenate", "none")
}

func TestSortedSelectionDims(t *testing.T) {
	sel := llcex.IndexSelection{
		"j":    llcex.Slice(0, 2),
		"i":    llcex.Slice(1, 3),
		"face": llcex.Discrete(0, 4),
	}
	got := sortedSelectionDims(sel)
	want := []string{"face", "i", "j"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
