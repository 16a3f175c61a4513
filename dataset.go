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
	"time"

	"github.com/ctessum/sparse"
)

// Dim is a named dataset dimension.
type Dim struct {
	Name   string
	Length int
}

// Variable holds one labeled array: the names of the dimensions it is
// defined on, descriptive metadata, and the data itself.
type Variable struct {
	Dims        []string           // netcdf dimensions for this variable
	Description string             // variable description
	Units       string             // variable units
	Data        *sparse.DenseArray // variable data
}

// Dataset is a labeled multi-dimensional container for model output.
// Coords holds the static grid geometry (cell-center and cell-corner
// longitude and latitude, depths, cell areas, land fractions); DataVars
// holds the time-varying physical fields. Every variable's dimensions must
// be a subset of Dims, and coordinates never carry the time dimension.
type Dataset struct {
	Dims     []Dim
	Coords   map[string]Variable
	DataVars map[string]Variable
	Attrs    map[string]string

	// TimeDim names the time dimension ("" if the dataset has none) and
	// Times holds its decoded calendar values, one per index.
	TimeDim string
	Times   []time.Time
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		Coords:   make(map[string]Variable),
		DataVars: make(map[string]Variable),
		Attrs:    make(map[string]string),
	}
}

// DimLength returns the length of the named dimension.
func (d *Dataset) DimLength(name string) (int, bool) {
	for _, dim := range d.Dims {
		if dim.Name == name {
			return dim.Length, true
		}
	}
	return 0, false
}

func (d *Dataset) setDim(name string, length int) {
	for i, dim := range d.Dims {
		if dim.Name == name {
			d.Dims[i].Length = length
			return
		}
	}
	d.Dims = append(d.Dims, Dim{Name: name, Length: length})
}

// AddCoord adds a coordinate variable, registering any new dimensions.
func (d *Dataset) AddCoord(name string, v Variable) {
	d.registerDims(v)
	d.Coords[name] = v
}

// AddDataVar adds a data variable, registering any new dimensions.
func (d *Dataset) AddDataVar(name string, v Variable) {
	d.registerDims(v)
	d.DataVars[name] = v
}

func (d *Dataset) registerDims(v Variable) {
	for i, dim := range v.Dims {
		if _, ok := d.DimLength(dim); !ok {
			d.setDim(dim, v.Data.Shape[i])
		}
	}
}

// Copy returns a copy of d that shares the underlying data arrays.
func (d *Dataset) Copy() *Dataset {
	o := NewDataset()
	o.Dims = append([]Dim{}, d.Dims...)
	for n, v := range d.Coords {
		o.Coords[n] = v
	}
	for n, v := range d.DataVars {
		o.DataVars[n] = v
	}
	for k, v := range d.Attrs {
		o.Attrs[k] = v
	}
	o.TimeDim = d.TimeDim
	o.Times = append([]time.Time{}, d.Times...)
	return o
}

// VarNames returns the sorted names of all variables in the dataset,
// coordinates first.
func (d *Dataset) VarNames() []string {
	coords := make([]string, 0, len(d.Coords))
	for n := range d.Coords {
		coords = append(coords, n)
	}
	sort.Strings(coords)
	vars := make([]string, 0, len(d.DataVars))
	for n := range d.DataVars {
		vars = append(vars, n)
	}
	sort.Strings(vars)
	return append(coords, vars...)
}

func (d *Dataset) variable(name string) (Variable, bool) {
	if v, ok := d.Coords[name]; ok {
		return v, true
	}
	v, ok := d.DataVars[name]
	return v, ok
}

// Isel subsets the dataset in index space. Dimensions named in sel are
// restricted to the selected indices; all other dimensions are kept whole.
func (d *Dataset) Isel(sel IndexSelection) *Dataset {
	pick := make(map[string][]int)
	for dim, ix := range sel {
		if n, ok := d.DimLength(dim); ok {
			pick[dim] = ix.indices(n)
		}
	}
	o := NewDataset()
	for _, dim := range d.Dims {
		if p, ok := pick[dim.Name]; ok {
			o.Dims = append(o.Dims, Dim{Name: dim.Name, Length: len(p)})
		} else {
			o.Dims = append(o.Dims, dim)
		}
	}
	for n, v := range d.Coords {
		o.Coords[n] = subsetVariable(v, pick)
	}
	for n, v := range d.DataVars {
		o.DataVars[n] = subsetVariable(v, pick)
	}
	for k, v := range d.Attrs {
		o.Attrs[k] = v
	}
	o.TimeDim = d.TimeDim
	if p, ok := pick[d.TimeDim]; ok && d.TimeDim != "" {
		o.Times = make([]time.Time, len(p))
		for i, j := range p {
			o.Times[i] = d.Times[j]
		}
	} else {
		o.Times = append([]time.Time{}, d.Times...)
	}
	return o
}

// DropVars returns a copy of d without the named variables. It fails if any
// name is not present in the dataset, so that callers can fall back to
// extraction without the drop step.
func (d *Dataset) DropVars(names ...string) (*Dataset, error) {
	o := d.Copy()
	for _, n := range names {
		if _, ok := o.Coords[n]; ok {
			delete(o.Coords, n)
			continue
		}
		if _, ok := o.DataVars[n]; ok {
			delete(o.DataVars, n)
			continue
		}
		return nil, fmt.Errorf("llcex: cannot drop %q: not present in dataset", n)
	}
	return o, nil
}

// GridOnly returns a view of d containing only the static grid: all data
// variables are dropped, along with the time dimension and its values.
func (d *Dataset) GridOnly() *Dataset {
	o := d.Copy()
	o.DataVars = make(map[string]Variable)
	if o.TimeDim != "" {
		dims := o.Dims[:0]
		for _, dim := range o.Dims {
			if dim.Name != o.TimeDim {
				dims = append(dims, dim)
			}
		}
		o.Dims = dims
	}
	o.TimeDim = ""
	o.Times = nil
	return o
}

// SelectVarAtTime returns a dataset containing the single named data
// variable restricted to one absolute time index (the time dimension is kept
// with length one so that per-timestep files concatenate cleanly), plus all
// coordinates.
func (d *Dataset) SelectVarAtTime(name string, ti int) (*Dataset, error) {
	v, ok := d.DataVars[name]
	if !ok {
		return nil, fmt.Errorf("llcex: variable %q is not present in dataset", name)
	}
	if d.TimeDim == "" {
		return nil, fmt.Errorf("llcex: variable %q has no time dimension to select on", name)
	}
	if ti < 0 || ti >= len(d.Times) {
		return nil, fmt.Errorf("llcex: time index %d out of range [0,%d)", ti, len(d.Times))
	}
	o := NewDataset()
	pick := map[string][]int{d.TimeDim: {ti}}
	for _, dim := range d.Dims {
		if dim.Name == d.TimeDim {
			o.Dims = append(o.Dims, Dim{Name: dim.Name, Length: 1})
		} else {
			o.Dims = append(o.Dims, dim)
		}
	}
	for n, c := range d.Coords {
		o.Coords[n] = c
	}
	o.DataVars[name] = subsetVariable(v, pick)
	for k, val := range d.Attrs {
		o.Attrs[k] = val
	}
	o.TimeDim = d.TimeDim
	o.Times = []time.Time{d.Times[ti]}
	return o, nil
}

// MergeCoords adds the coordinates of g that are not already present in d,
// registering their dimensions. It is used to re-attach a previously
// extracted grid to a dataset loaded without one.
func (d *Dataset) MergeCoords(g *Dataset) {
	for n, v := range g.Coords {
		if _, ok := d.Coords[n]; !ok {
			d.AddCoord(n, v)
		}
	}
}

// selectTimes subsets the dataset to the given time indices, leaving
// time-invariant variables untouched.
func (d *Dataset) selectTimes(idx []int) *Dataset {
	return d.Isel(IndexSelection{d.TimeDim: Discrete(idx...)})
}

// appendTime concatenates o onto d along the time dimension. The two
// datasets must hold the same data variables.
func (d *Dataset) appendTime(o *Dataset) error {
	if d.TimeDim == "" || o.TimeDim != d.TimeDim {
		return fmt.Errorf("llcex: cannot concatenate datasets with time dimensions %q and %q", d.TimeDim, o.TimeDim)
	}
	for n, v := range d.DataVars {
		ov, ok := o.DataVars[n]
		if !ok {
			return fmt.Errorf("llcex: variable %q missing from concatenation input", n)
		}
		axis := -1
		for i, dim := range v.Dims {
			if dim == d.TimeDim {
				axis = i
			}
		}
		if axis < 0 {
			continue
		}
		v.Data = concatDense(v.Data, ov.Data, axis)
		d.DataVars[n] = v
	}
	d.Times = append(d.Times, o.Times...)
	nt, _ := d.DimLength(d.TimeDim)
	ot, _ := o.DimLength(o.TimeDim)
	d.setDim(d.TimeDim, nt+ot)
	return nil
}

func subsetVariable(v Variable, pick map[string][]int) Variable {
	needed := false
	for _, dim := range v.Dims {
		if _, ok := pick[dim]; ok {
			needed = true
		}
	}
	if !needed {
		return v
	}
	v.Data = subsetDense(v.Data, v.Dims, pick)
	return v
}

// subsetDense restricts a to the given indices along the dimensions named in
// pick, keeping other dimensions whole.
func subsetDense(a *sparse.DenseArray, dims []string, pick map[string][]int) *sparse.DenseArray {
	shape := make([]int, len(a.Shape))
	lists := make([][]int, len(a.Shape))
	for k := range a.Shape {
		if p, ok := pick[dims[k]]; ok {
			shape[k] = len(p)
			lists[k] = p
		} else {
			shape[k] = a.Shape[k]
		}
	}
	out := sparse.ZerosDense(shape...)
	src := make([]int, len(shape))
	for i := range out.Elements {
		idx := out.IndexNd(i)
		for k, j := range idx {
			if lists[k] != nil {
				src[k] = lists[k][j]
			} else {
				src[k] = j
			}
		}
		out.Elements[i] = a.Get(src...)
	}
	return out
}

// concatDense concatenates b onto a along the given axis.
func concatDense(a, b *sparse.DenseArray, axis int) *sparse.DenseArray {
	shape := append([]int{}, a.Shape...)
	shape[axis] += b.Shape[axis]
	out := sparse.ZerosDense(shape...)
	for i := range out.Elements {
		idx := out.IndexNd(i)
		if idx[axis] < a.Shape[axis] {
			out.Elements[i] = a.Get(idx...)
		} else {
			idx[axis] -= a.Shape[axis]
			out.Elements[i] = b.Get(idx...)
		}
	}
	return out
}
