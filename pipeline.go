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
	"fmt"
	"path/filepath"
	"sort"
)

// RunConfig configures one extraction run.
type RunConfig struct {
	// Variables are the data variables to extract, one file per variable
	// per timestep.
	Variables []string

	// ExtractGrid persists the static grid before extraction. When false,
	// the grid file from a previous run is re-attached to the dataset
	// instead; a run with neither fails with ErrMissingGridFile.
	ExtractGrid bool

	// Concatenate re-groups the per-timestep files into files at this
	// granularity after extraction. ModeNone skips aggregation.
	Concatenate Mode

	// Selection is the index-space region to extract, as resolved by
	// Subset or supplied directly. An empty selection extracts the whole
	// grid.
	Selection IndexSelection

	// DroppedCoords are the auxiliary coordinates removed from
	// per-timestep files. Nil means the standard table.
	DroppedCoords []string
}

// RunReport summarizes the work performed by a run. Skips due to
// already-existing files are counted separately from writes, so a re-run
// over complete output reports zero writes.
type RunReport struct {
	GridWritten bool
	Written     int // per-timestep files written
	Skipped     int // per-timestep files skipped as already present
	Aggregated  int // aggregated files written

	// VariableErrors records per-variable extraction failures. A failure
	// in one variable does not abort the others.
	VariableErrors map[string]error
}

// Err returns an error summarizing any per-variable failures.
func (r *RunReport) Err() error {
	if len(r.VariableErrors) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.VariableErrors))
	for n := range r.VariableErrors {
		names = append(names, n)
	}
	sort.Strings(names)
	return fmt.Errorf("llcex: extraction failed for %d variable(s) %v: %w",
		len(names), names, r.VariableErrors[names[0]])
}

// Run executes the extraction pipeline over ds:
//
//  1. Persist the static grid (or re-attach a previously extracted one).
//  2. Extract every requested (variable, timestep) pair into its own file.
//  3. Optionally re-open the per-timestep files month by month, join them
//     along time, and re-group them at the configured granularity.
//
// Stage 3 deliberately re-reads the freshly written files instead of
// accumulating output in memory: each stage's completion is then detectable
// purely from file existence, so an interrupted run can be repeated with
// overwriting disabled and will redo only the missing work.
//
// Extraction failures are isolated per variable: a failure in one variable
// is recorded in the report and the remaining variables still run. The
// returned error covers the fatal conditions only (grid stage failure or
// aggregation failure).
func Run(ds *Dataset, cfg RunConfig, out OutputDescriptor) (*RunReport, error) {
	report := &RunReport{VariableErrors: make(map[string]error)}
	dropped := cfg.DroppedCoords
	if dropped == nil {
		dropped = DroppedCoords
	}
	sel := cfg.Selection

	if cfg.ExtractGrid {
		w, err := ExtractGrid(ds.GridOnly(), sel, out)
		if err != nil {
			return report, err
		}
		report.GridWritten = w
	} else {
		path := out.gridPath()
		if !fileExists(path) {
			return report, fmt.Errorf("%w: %s", ErrMissingGridFile, path)
		}
		grid, err := ReadDataset(path, out.Format)
		if err != nil {
			return report, err
		}
		// The stored grid is already subset, so the selection is applied
		// to the input dataset here, once, and not again per variable.
		ds = ds.Isel(sel)
		ds.MergeCoords(grid)
		sel = nil
	}

	for _, varName := range cfg.Variables {
		logger.WithField("variable", varName).Info("extracting variable")
		for ti := range ds.Times {
			w, err := ExtractVariable(ds, varName, ti, sel, dropped, out)
			if err != nil {
				logger.WithField("variable", varName).WithError(err).Error("variable extraction failed")
				report.VariableErrors[varName] = err
				break
			}
			if w {
				report.Written++
			} else {
				report.Skipped++
			}
		}
	}

	if cfg.Concatenate == ModeNone {
		return report, report.Err()
	}
	for _, varName := range cfg.Variables {
		if _, failed := report.VariableErrors[varName]; failed {
			continue
		}
		n, err := aggregateVariable(ds, varName, cfg.Concatenate, out)
		if err != nil {
			return report, err
		}
		report.Aggregated += n
	}
	return report, report.Err()
}

// aggregateVariable joins the per-timestep files of one variable and
// re-groups them at the given granularity. Files are collected month by
// month; a month with no files is expected (the dataset may not cover it)
// and is skipped silently.
func aggregateVariable(ds *Dataset, varName string, mode Mode, out OutputDescriptor) (int, error) {
	varDir := filepath.Join(out.Root, varName)
	var joined *Dataset
	for _, year := range timeYears(ds) {
		for month := 1; month <= 12; month++ {
			pattern := filepath.Join(varDir,
				fmt.Sprintf("%s_%s_y%04d_m%02d_d*_h*.nc", out.Prefix, varName, year, month))
			paths, err := filepath.Glob(pattern)
			if err != nil {
				return 0, err
			}
			if len(paths) == 0 {
				continue
			}
			sort.Strings(paths) // calendar order by construction of the names
			for _, p := range paths {
				d, err := ReadDataset(p, out.Format)
				if err != nil {
					return 0, err
				}
				if joined == nil {
					joined = d
				} else if err := joined.appendTime(d); err != nil {
					return 0, err
				}
			}
		}
	}
	if joined == nil {
		return 0, nil
	}
	aggOut := out
	aggOut.Root = varDir
	return Concatenate(joined, varName, mode, aggOut)
}

// timeYears returns the sorted calendar years covered by the dataset.
func timeYears(ds *Dataset) []int {
	set := make(map[int]bool)
	for _, t := range ds.Times {
		set[t.UTC().Year()] = true
	}
	years := make([]int, 0, len(set))
	for y := range set {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
