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

// Package llcex extracts geographic regions from ocean general circulation
// model output and writes them to trees of NetCDF files, partitioned by
// region, by variable, and by time granularity (per-timestep, daily,
// monthly, or yearly).
//
// The input is an in-memory labeled dataset (named dimensions, grid
// coordinates, and time-varying variables) as produced by an upstream model
// output loader; llcex does not parse raw model binaries itself.
package llcex

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// Version gives the version number of this library.
const Version = "1.2.1"

// These errors report the fatal failure modes of an extraction run.
// Non-fatal conditions (an output file that already exists, an aggregation
// window with no input files, a coordinate drop that doesn't apply to a
// variable) are logged and skipped rather than returned.
var (
	// ErrEmptySelection is returned when a bounding box does not intersect
	// any cell of the model grid.
	ErrEmptySelection = errors.New("llcex: bounding box does not intersect the model grid")

	// ErrMissingGridFile is returned when grid re-attachment is requested
	// but the grid has not previously been extracted.
	ErrMissingGridFile = errors.New("llcex: grid file has not been extracted")

	// ErrInvalidMode is returned for a concatenation mode outside
	// {yearly, monthly, daily}.
	ErrInvalidMode = errors.New("llcex: invalid concatenation mode")
)

var logger = logrus.StandardLogger()

// SetLogger replaces the logger used for progress and skip notices.
func SetLogger(l *logrus.Logger) { logger = l }
