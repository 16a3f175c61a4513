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
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// A full run over two days of hourly output, followed by a re-run over the
// same tree, which must redo none of the work.
func TestRun(t *testing.T) {
	ds := testDataset(48)
	out := DefaultOutput(t.TempDir(), "llc")
	sel, err := Subset(ds, testBox(t), DefaultGridNames())
	if err != nil {
		t.Fatal(err)
	}
	cfg := RunConfig{
		Variables:   []string{"Theta", "Salt"},
		ExtractGrid: true,
		Concatenate: ModeDaily,
		Selection:   sel,
	}

	report, err := Run(ds, cfg, out)
	if err != nil {
		t.Fatal(err)
	}
	if !report.GridWritten {
		t.Error("grid was not written")
	}
	if report.Written != 96 || report.Skipped != 0 {
		t.Errorf("written/skipped: got %d/%d, want 96/0", report.Written, report.Skipped)
	}
	if report.Aggregated != 4 { // 2 variables x 2 days
		t.Errorf("aggregated: got %d, want 4", report.Aggregated)
	}

	// The aggregated daily file carries all 24 timesteps of its day in order.
	day2, err := ReadDataset(filepath.Join(out.Root, "Theta", "2011", "m01", "llc_Theta_y2011_m01_d02.nc"), out.Format)
	if err != nil {
		t.Fatal(err)
	}
	if len(day2.Times) != 24 {
		t.Fatalf("day 2: got %d timesteps, want 24", len(day2.Times))
	}
	// Source timestep 24+7, subset rows/cols 0-2, local indices (2,1).
	if got, want := day2.DataVars["Theta"].Data.Get(7, 2, 1), float64(100*31+10*2+1); got != want {
		t.Errorf("day 2 Theta[7,2,1]: got %g, want %g", got, want)
	}

	report, err = Run(ds, cfg, out)
	if err != nil {
		t.Fatal(err)
	}
	if report.GridWritten {
		t.Error("re-run rewrote the grid")
	}
	if report.Written != 0 || report.Skipped != 96 {
		t.Errorf("re-run written/skipped: got %d/%d, want 0/96", report.Written, report.Skipped)
	}
	if report.Aggregated != 0 {
		t.Errorf("re-run aggregated: got %d, want 0", report.Aggregated)
	}
}

func TestRunMissingGrid(t *testing.T) {
	ds := testDataset(2)
	out := DefaultOutput(t.TempDir(), "llc")
	cfg := RunConfig{Variables: []string{"Theta"}, ExtractGrid: false}
	if _, err := Run(ds, cfg, out); !errors.Is(err, ErrMissingGridFile) {
		t.Errorf("got %v, want ErrMissingGridFile", err)
	}
}

// With grid extraction disabled, the grid file from an earlier run is
// re-attached to a dataset loaded without coordinates.
func TestRunReattachGrid(t *testing.T) {
	ds := testDataset(6)
	out := DefaultOutput(t.TempDir(), "llc")
	first := RunConfig{Variables: []string{"Theta"}, ExtractGrid: true}
	if _, err := Run(ds, first, out); err != nil {
		t.Fatal(err)
	}

	bare := NewDataset()
	bare.TimeDim = ds.TimeDim
	bare.Times = ds.Times
	bare.AddDataVar("Theta", ds.DataVars["Theta"])

	report, err := Run(bare, RunConfig{Variables: []string{"Theta"}}, out)
	if err != nil {
		t.Fatal(err)
	}
	if report.Written != 0 || report.Skipped != 6 {
		t.Errorf("written/skipped: got %d/%d, want 0/6", report.Written, report.Skipped)
	}
	// The input dataset itself stays coordinate-free.
	if len(bare.Coords) != 0 {
		t.Error("re-attachment modified the input dataset")
	}
}

// Re-attachment with a selection that starts past index zero: the stored
// grid coordinates are already subset, and the selection must be applied to
// the input dataset exactly once.
func TestRunReattachGridSelection(t *testing.T) {
	ds := testDataset(4)
	out := DefaultOutput(t.TempDir(), "llc")
	sel := IndexSelection{
		"j":   Slice(1, 4),
		"i":   Slice(1, 4),
		"j_g": Slice(1, 4),
		"i_g": Slice(1, 4),
	}
	first := RunConfig{Variables: []string{"Theta"}, ExtractGrid: true, Selection: sel}
	if _, err := Run(ds, first, out); err != nil {
		t.Fatal(err)
	}

	// Force one timestep to be re-extracted through the re-attach path.
	redo := filepath.Join(out.Root, "Theta", "llc_Theta_y2011_m01_d01_h02.nc")
	if err := os.Remove(redo); err != nil {
		t.Fatal(err)
	}

	bare := NewDataset()
	bare.TimeDim = ds.TimeDim
	bare.Times = ds.Times
	bare.AddDataVar("Theta", ds.DataVars["Theta"])

	report, err := Run(bare, RunConfig{Variables: []string{"Theta"}, Selection: sel}, out)
	if err != nil {
		t.Fatal(err)
	}
	if report.Written != 1 || report.Skipped != 3 {
		t.Fatalf("written/skipped: got %d/%d, want 1/3", report.Written, report.Skipped)
	}

	single, err := ReadDataset(redo, out.Format)
	if err != nil {
		t.Fatal(err)
	}
	theta := single.DataVars["Theta"].Data
	if got, want := theta.Shape, []int{1, 3, 3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Theta shape: got %v, want %v", got, want)
	}
	// Local (0,0) is source (j=1, i=1) at timestep 2.
	if got, want := theta.Get(0, 0, 0), float64(100*2+10*1+1); got != want {
		t.Errorf("Theta[0,0,0]: got %g, want %g", got, want)
	}
	// The re-attached coordinates line up with the extracted region.
	if got, want := single.Coords["XC"].Data.Get(0, 0), 1.5; got != want {
		t.Errorf("XC[0,0]: got %g, want %g", got, want)
	}
	if got, want := single.Coords["XG"].Data.Get(0, 0), 1.0; got != want {
		t.Errorf("XG[0,0]: got %g, want %g", got, want)
	}
}

// A failure in one variable is recorded and does not abort the others.
func TestRunVariableIsolation(t *testing.T) {
	ds := testDataset(3)
	out := DefaultOutput(t.TempDir(), "llc")
	cfg := RunConfig{
		Variables:   []string{"Theta", "Vorticity"},
		ExtractGrid: true,
	}

	report, err := Run(ds, cfg, out)
	if err == nil {
		t.Fatal("run with an absent variable should report an error")
	}
	if report.VariableErrors["Vorticity"] == nil {
		t.Error("failure was not recorded for the absent variable")
	}
	if report.Written != 3 {
		t.Errorf("written: got %d, want 3 (the healthy variable)", report.Written)
	}
	paths, err := filepath.Glob(filepath.Join(out.Root, "Theta", "*.nc"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 3 {
		t.Errorf("Theta files: got %d, want 3", len(paths))
	}
}

func TestRunReportErr(t *testing.T) {
	r := &RunReport{}
	if r.Err() != nil {
		t.Error("empty report should have no error")
	}
	r.VariableErrors = map[string]error{"Theta": errors.New("boom")}
	if r.Err() == nil {
		t.Error("report with failures should have an error")
	}
}
