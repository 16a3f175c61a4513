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

package llcex

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTimestepFileName(t *testing.T) {
	k := NewTimeKey(time.Date(2011, 3, 5, 7, 0, 0, 0, time.UTC))
	got := timestepFileName("llc", "Theta", k)
	want := "llc_Theta_y2011_m03_d05_h07.nc"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractGrid(t *testing.T) {
	ds := testDataset(2)
	out := DefaultOutput(t.TempDir(), "llc")
	sel, err := Subset(ds, testBox(t), DefaultGridNames())
	if err != nil {
		t.Fatal(err)
	}

	w, err := ExtractGrid(ds.GridOnly(), sel, out)
	if err != nil {
		t.Fatal(err)
	}
	if !w {
		t.Fatal("grid was not written")
	}
	path := filepath.Join(out.Root, "grid", "llc_grid.nc")
	grid, err := ReadDataset(path, out.Format)
	if err != nil {
		t.Fatal(err)
	}
	if len(grid.DataVars) != 0 {
		t.Errorf("grid file holds %d data variables", len(grid.DataVars))
	}
	if n, _ := grid.DimLength("j"); n != 3 {
		t.Errorf("j length: got %d, want 3", n)
	}
	if n, _ := grid.DimLength("j_g"); n != 2 {
		t.Errorf("j_g length: got %d, want 2", n)
	}

	// Re-extraction over an existing grid file must not modify it.
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err = ExtractGrid(ds.GridOnly(), sel, out)
	if err != nil {
		t.Fatal(err)
	}
	if w {
		t.Error("second grid extraction was not skipped")
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("skipped extraction modified the grid file")
	}
}

func TestExtractVariable(t *testing.T) {
	ds := testDataset(2)
	out := DefaultOutput(t.TempDir(), "llc")
	sel, err := Subset(ds, testBox(t), DefaultGridNames())
	if err != nil {
		t.Fatal(err)
	}

	w, err := ExtractVariable(ds, "Theta", 1, sel, []string{"Depth"}, out)
	if err != nil {
		t.Fatal(err)
	}
	if !w {
		t.Fatal("variable was not written")
	}
	path := filepath.Join(out.Root, "Theta", "llc_Theta_y2011_m01_d01_h01.nc")
	single, err := ReadDataset(path, out.Format)
	if err != nil {
		t.Fatal(err)
	}
	if len(single.DataVars) != 1 {
		t.Fatalf("data variables: got %d, want 1", len(single.DataVars))
	}
	if _, ok := single.Coords["Depth"]; ok {
		t.Error("dropped coordinate Depth survived extraction")
	}
	theta := single.DataVars["Theta"].Data
	if got, want := theta.Shape, []int{1, 3, 3}; len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("Theta shape: got %v, want %v", got, want)
	}
	if got, want := theta.Get(0, 2, 1), 121.0; got != want {
		t.Errorf("Theta[0,2,1]: got %g, want %g", got, want)
	}
	if len(single.Times) != 1 || !single.Times[0].Equal(ds.Times[1]) {
		t.Errorf("times: got %v, want [%v]", single.Times, ds.Times[1])
	}

	// The second extraction of the same timestep is a reported no-op.
	w, err = ExtractVariable(ds, "Theta", 1, sel, []string{"Depth"}, out)
	if err != nil {
		t.Fatal(err)
	}
	if w {
		t.Error("second extraction was not skipped")
	}
}

// A drop list entry that does not apply to the dataset must not abort the
// extraction; the variable is extracted without the removal step.
func TestExtractVariableDropFailure(t *testing.T) {
	ds := testDataset(1)
	out := DefaultOutput(t.TempDir(), "llc")

	w, err := ExtractVariable(ds, "Theta", 0, nil, []string{"hFacC", "Depth"}, out)
	if err != nil {
		t.Fatal(err)
	}
	if !w {
		t.Fatal("variable was not written")
	}
	single, err := ReadDataset(filepath.Join(out.Root, "Theta", "llc_Theta_y2011_m01_d01_h00.nc"), out.Format)
	if err != nil {
		t.Fatal(err)
	}
	// The whole drop step is skipped, so Depth stays too.
	if _, ok := single.Coords["Depth"]; !ok {
		t.Error("fallback extraction should keep all coordinates")
	}
}

func TestExtractVariableBadIndex(t *testing.T) {
	ds := testDataset(1)
	out := DefaultOutput(t.TempDir(), "llc")
	if _, err := ExtractVariable(ds, "Theta", 1, nil, nil, out); err == nil {
		t.Error("out-of-range time index should fail")
	}
}

// Extracting every (variable, timestep) pair produces exactly T x V files.
func TestExtractCompleteness(t *testing.T) {
	ds := testDataset(3)
	out := DefaultOutput(t.TempDir(), "llc")
	vars := []string{"Theta", "Salt"}
	for _, name := range vars {
		for ti := range ds.Times {
			if _, err := ExtractVariable(ds, name, ti, nil, nil, out); err != nil {
				t.Fatal(err)
			}
		}
	}
	for _, name := range vars {
		paths, err := filepath.Glob(filepath.Join(out.Root, name, "*.nc"))
		if err != nil {
			t.Fatal(err)
		}
		if len(paths) != len(ds.Times) {
			t.Errorf("%s: got %d files, want %d", name, len(paths), len(ds.Times))
		}
	}
}
