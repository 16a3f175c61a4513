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
	"strings"
)

// Mode selects the calendar granularity of aggregated output files.
type Mode int

const (
	// ModeNone disables aggregation. It is not a valid Aggregator input.
	ModeNone Mode = iota
	ModeYearly
	ModeMonthly
	ModeDaily
)

// ParseMode parses a configuration string into a Mode. The empty string and
// "none" parse to ModeNone; anything other than yearly, monthly, or daily
// fails with ErrInvalidMode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return ModeNone, nil
	case "yearly":
		return ModeYearly, nil
	case "monthly":
		return ModeMonthly, nil
	case "daily":
		return ModeDaily, nil
	}
	return ModeNone, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeYearly:
		return "yearly"
	case ModeMonthly:
		return "monthly"
	case ModeDaily:
		return "daily"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Concatenate re-groups the timesteps of ds, a joined per-timestep dataset
// for one variable, into one file per aggregation window at the granularity
// given by mode, under out.Root (the variable's directory):
//
//	yearly:   <root>/<prefix>_<var>_y<YYYY>.nc
//	monthly:  <root>/<YYYY>/<prefix>_<var>_y<YYYY>_m<MM>.nc
//	daily:    <root>/<YYYY>/m<MM>/<prefix>_<var>_y<YYYY>_m<MM>_d<DD>.nc
//
// Year and month subdirectories are created as needed. Every timestep of ds
// lands in exactly one output file. Each write is idempotent: an existing
// target with overwriting disabled is skipped with a notice. Concatenate
// fails with ErrInvalidMode for any mode outside the three granularities.
// The returned count is the number of files written.
func Concatenate(ds *Dataset, varName string, mode Mode, out OutputDescriptor) (int, error) {
	switch mode {
	case ModeYearly, ModeMonthly, ModeDaily:
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidMode, mode)
	}
	if _, ok := ds.DataVars[varName]; !ok {
		return 0, fmt.Errorf("llcex: variable %q is not present in dataset", varName)
	}
	if _, ok := out.Encoding[varName]; !ok {
		// Aggregated files default to compressed float32 storage. The
		// compression request is recorded only; see Encoding.
		o := out
		o.Encoding = map[string]Encoding{varName: {Dtype: "float32", Zlib: true, Level: 1}}
		out = o
	}

	written := 0
	years := groupTimes(ds, func(k TimeKey) int { return k.Year })
	for _, year := range sortedKeys(years) {
		switch mode {
		case ModeYearly:
			path := filepath.Join(out.Root, fmt.Sprintf("%s_%s_y%04d.nc", out.Prefix, varName, year))
			w, err := writeIfAbsent(path, ds.selectTimes(years[year]), out)
			if err != nil {
				return written, err
			}
			if w {
				written++
			}
			continue
		}

		yearDir := filepath.Join(out.Root, fmt.Sprintf("%04d", year))
		yearDS := ds.selectTimes(years[year])
		months := groupTimes(yearDS, func(k TimeKey) int { return k.Month })
		for _, month := range sortedKeys(months) {
			if mode == ModeMonthly {
				path := filepath.Join(yearDir, fmt.Sprintf("%s_%s_y%04d_m%02d.nc", out.Prefix, varName, year, month))
				w, err := writeIfAbsent(path, yearDS.selectTimes(months[month]), out)
				if err != nil {
					return written, err
				}
				if w {
					written++
				}
				continue
			}

			monthDir := filepath.Join(yearDir, fmt.Sprintf("m%02d", month))
			monthDS := yearDS.selectTimes(months[month])
			days := groupTimes(monthDS, func(k TimeKey) int { return k.Day })
			for _, day := range sortedKeys(days) {
				path := filepath.Join(monthDir, fmt.Sprintf("%s_%s_y%04d_m%02d_d%02d.nc", out.Prefix, varName, year, month, day))
				w, err := writeIfAbsent(path, monthDS.selectTimes(days[day]), out)
				if err != nil {
					return written, err
				}
				if w {
					written++
				}
			}
		}
	}
	return written, nil
}

// groupTimes partitions the time indices of ds by one component of their
// calendar key. Every index lands in exactly one group.
func groupTimes(ds *Dataset, key func(TimeKey) int) map[int][]int {
	groups := make(map[int][]int)
	for i, t := range ds.Times {
		k := key(NewTimeKey(t))
		groups[k] = append(groups[k], i)
	}
	return groups
}

func sortedKeys(m map[int][]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
