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
	"time"
)

// DroppedCoords lists the auxiliary grid coordinates that are kept only in
// the grid file and removed from per-timestep variable files to avoid
// duplicating them across thousands of small files: cell edge lengths and
// areas, auxiliary vertical indices, land/sea fractions, depth, and
// reference pressures.
var DroppedCoords = []string{
	"dxC", "dyC", "dxG", "dyG",
	"rA", "rAs", "rAw", "rAz",
	"k_p1", "k_u",
	"hFacC", "hFacS", "hFacW",
	"Depth", "PHrefC", "drF",
}

// TimeKey is the calendar key of one timestep, used for file naming and
// aggregation grouping.
type TimeKey struct {
	Year, Month, Day, Hour int
}

// NewTimeKey derives the calendar key of t in UTC.
func NewTimeKey(t time.Time) TimeKey {
	t = t.UTC()
	return TimeKey{Year: t.Year(), Month: int(t.Month()), Day: t.Day(), Hour: t.Hour()}
}

// ExtractGrid persists the static grid fields of a grid-only dataset to
// root/grid/<prefix>_grid.nc, applying the index selection (with any
// time-like entry removed, since grid fields do not vary in time). If the
// target file already exists and overwriting is disabled the call is a
// reported no-op. The caller is responsible for stripping time-varying
// fields beforehand (see Dataset.GridOnly). The returned boolean reports
// whether a file was written.
func ExtractGrid(grid *Dataset, sel IndexSelection, out OutputDescriptor) (bool, error) {
	path := out.gridPath()
	if fileExists(path) && !out.Overwrite {
		logger.WithField("path", path).Info("file already exists, skipping the extraction")
		return false, nil
	}
	if grid.TimeDim != "" {
		sel = sel.without(grid.TimeDim)
	}
	sel = sel.without("time")
	return writeIfAbsent(path, grid.Isel(sel), out)
}

// ExtractVariable persists one data variable at one absolute time index to
// root/<var>/<prefix>_<var>_y<YYYY>_m<MM>_d<DD>_h<HH>.nc, applying the index
// selection and dropping the auxiliary coordinates listed in dropped (kept
// only in the grid file). If a drop does not apply to this dataset the
// extraction is retried without the drop step rather than failed. The write
// is idempotent: an existing target with overwriting disabled is skipped
// with a notice. The returned boolean reports whether a file was written.
func ExtractVariable(ds *Dataset, varName string, ti int, sel IndexSelection, dropped []string, out OutputDescriptor) (bool, error) {
	if ti < 0 || ti >= len(ds.Times) {
		return false, fmt.Errorf("llcex: time index %d out of range [0,%d)", ti, len(ds.Times))
	}
	k := NewTimeKey(ds.Times[ti])
	path := filepath.Join(out.Root, varName, timestepFileName(out.Prefix, varName, k))
	if fileExists(path) && !out.Overwrite {
		logger.WithField("path", path).Info("file already exists, skipping the extraction")
		return false, nil
	}
	sub, err := ds.DropVars(dropped...)
	if err != nil {
		// Not all auxiliary coordinates apply to every dataset; extract
		// without the removal step.
		logger.WithFields(map[string]interface{}{
			"variable": varName,
		}).Warnf("could not drop auxiliary coordinates (%v), extracting without removal", err)
		sub = ds
	}
	single, err := sub.Isel(sel).SelectVarAtTime(varName, ti)
	if err != nil {
		return false, err
	}
	return writeIfAbsent(path, single, out)
}

func timestepFileName(prefix, varName string, k TimeKey) string {
	return fmt.Sprintf("%s_%s_y%04d_m%02d_d%02d_h%02d.nc", prefix, varName, k.Year, k.Month, k.Day, k.Hour)
}
