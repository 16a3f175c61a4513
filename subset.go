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
	"sort"

	"github.com/ctessum/geom"
)

// Indexer selects indices along one dimension: either the contiguous
// half-open range [Start,Stop), or, when Indices is non-nil, an explicit set
// of discrete indices (used for the face dimension of multi-face grids).
type Indexer struct {
	Start, Stop int
	Indices     []int
}

// Slice returns an Indexer for the contiguous range [start,stop).
func Slice(start, stop int) Indexer { return Indexer{Start: start, Stop: stop} }

// Discrete returns an Indexer for an explicit set of indices.
func Discrete(idx ...int) Indexer { return Indexer{Indices: idx} }

// indices expands the indexer; n is the dimension length used to clip
// contiguous ranges.
func (ix Indexer) indices(n int) []int {
	if ix.Indices != nil {
		return ix.Indices
	}
	stop := ix.Stop
	if stop > n {
		stop = n
	}
	var o []int
	for i := ix.Start; i < stop; i++ {
		o = append(o, i)
	}
	return o
}

// IndexSelection maps dimension names to index selections over those
// dimensions. It is produced once per run by Subset and reused across all
// extraction calls.
type IndexSelection map[string]Indexer

// without returns a copy of s with the named dimension removed.
func (s IndexSelection) without(dim string) IndexSelection {
	o := make(IndexSelection, len(s))
	for k, v := range s {
		if k != dim {
			o[k] = v
		}
	}
	return o
}

// BoundingBox is a rectangular geographic region.
type BoundingBox struct {
	b geom.Bounds // X is longitude, Y is latitude.
}

// NewBoundingBox validates and returns a bounding box.
func NewBoundingBox(latMin, latMax, lonMin, lonMax float64) (*BoundingBox, error) {
	if latMin >= latMax {
		return nil, fmt.Errorf("llcex: invalid bounding box: latMin=%g is not less than latMax=%g", latMin, latMax)
	}
	if lonMin >= lonMax {
		return nil, fmt.Errorf("llcex: invalid bounding box: lonMin=%g is not less than lonMax=%g", lonMin, lonMax)
	}
	return &BoundingBox{b: geom.Bounds{
		Min: geom.Point{X: lonMin, Y: latMin},
		Max: geom.Point{X: lonMax, Y: latMax},
	}}, nil
}

// Contains reports whether the point is strictly inside the box.
func (b *BoundingBox) Contains(lon, lat float64) bool {
	return lon > b.b.Min.X && lon < b.b.Max.X && lat > b.b.Min.Y && lat < b.b.Max.Y
}

// GridNames maps the grid conventions of the model output onto the dataset:
// the cell-center and cell-corner coordinate variables, the horizontal
// dimensions each pair is defined on, and the optional face dimension of
// multi-face (cubed-sphere/lat-lon-cap) geometries.
type GridNames struct {
	CenterLon, CenterLat string
	CornerLon, CornerLat string

	// CenterDims and CornerDims are the horizontal dimensions of the two
	// coordinate pairs, in (row, column) order.
	CenterDims, CornerDims [2]string

	Face string
}

// DefaultGridNames returns the MITgcm naming conventions.
func DefaultGridNames() GridNames {
	return GridNames{
		CenterLon: "XC", CenterLat: "YC",
		CornerLon: "XG", CornerLat: "YG",
		CenterDims: [2]string{"j", "i"},
		CornerDims: [2]string{"j_g", "i_g"},
		Face: "face",
	}
}

// Subset resolves a geographic bounding box into an index-space selection
// over the horizontal grid. The cell-center and cell-corner grids are masked
// independently (they are offset by half a cell), and each mask is reduced
// to the minimal contiguous index range along each horizontal dimension that
// contains every selected cell. For curvilinear grids this rectangle is an
// index-space approximation: it may include cells outside the geographic
// box, but never excludes one inside it. If the grid has a face dimension,
// every face containing at least one selected cell-center is included
// wholesale. Subset fails with ErrEmptySelection if the box intersects no
// cell.
func Subset(ds *Dataset, box *BoundingBox, names GridNames) (IndexSelection, error) {
	sel := make(IndexSelection)
	faces, err := maskToRanges(ds, box, names.CenterLon, names.CenterLat, names.CenterDims, names.Face, sel)
	if err != nil {
		return nil, err
	}
	if _, err := maskToRanges(ds, box, names.CornerLon, names.CornerLat, names.CornerDims, names.Face, sel); err != nil {
		return nil, err
	}
	if faces != nil {
		sel[names.Face] = Discrete(faces...)
	}
	return sel, nil
}

// maskToRanges computes the bounding index rectangle of the cells of one
// coordinate pair that fall inside the box, storing the per-dimension ranges
// into sel and returning the sorted face indices containing selected cells
// (nil if the grid has no face dimension).
func maskToRanges(ds *Dataset, box *BoundingBox, lonName, latName string, hdims [2]string, faceDim string, sel IndexSelection) ([]int, error) {
	lon, ok := ds.variable(lonName)
	if !ok {
		return nil, fmt.Errorf("llcex: coordinate %q is not present in dataset", lonName)
	}
	lat, ok := ds.variable(latName)
	if !ok {
		return nil, fmt.Errorf("llcex: coordinate %q is not present in dataset", latName)
	}
	rowAx, colAx, faceAx := -1, -1, -1
	for i, dim := range lon.Dims {
		switch dim {
		case hdims[0]:
			rowAx = i
		case hdims[1]:
			colAx = i
		case faceDim:
			faceAx = i
		}
	}
	if rowAx < 0 || colAx < 0 {
		return nil, fmt.Errorf("llcex: coordinate %q does not have horizontal dimensions (%s, %s)", lonName, hdims[0], hdims[1])
	}

	shape := lon.Data.Shape
	rowMin, rowMax := shape[rowAx], -1
	colMin, colMax := shape[colAx], -1
	faceSet := make(map[int]bool)
	for e := range lon.Data.Elements {
		if !box.Contains(lon.Data.Elements[e], lat.Data.Elements[e]) {
			continue
		}
		idx := lon.Data.IndexNd(e)
		if idx[rowAx] < rowMin {
			rowMin = idx[rowAx]
		}
		if idx[rowAx] > rowMax {
			rowMax = idx[rowAx]
		}
		if idx[colAx] < colMin {
			colMin = idx[colAx]
		}
		if idx[colAx] > colMax {
			colMax = idx[colAx]
		}
		if faceAx >= 0 {
			faceSet[idx[faceAx]] = true
		}
	}
	if rowMax < 0 {
		return nil, fmt.Errorf("%w: no %s/%s cell inside the box", ErrEmptySelection, lonName, latName)
	}
	sel[hdims[0]] = Slice(rowMin, rowMax+1)
	sel[hdims[1]] = Slice(colMin, colMax+1)
	if faceAx < 0 {
		return nil, nil
	}
	faces := make([]int, 0, len(faceSet))
	for f := range faceSet {
		faces = append(faces, f)
	}
	sort.Ints(faces)
	return faces, nil
}
