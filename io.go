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
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	nnc "github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// Format selects the on-disk container variant for output files.
type Format int

const (
	// FormatClassic is the NetCDF-3 classic container.
	FormatClassic Format = iota
	// FormatCDF5 is the CDF-5 container family, which upgrades the
	// container version as the data demands.
	FormatCDF5
)

// ParseFormat parses a configuration string into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(s) {
	case "", "NETCDF3_CLASSIC":
		return FormatClassic, nil
	case "CDF5":
		return FormatCDF5, nil
	}
	return 0, fmt.Errorf("llcex: invalid file format %q (valid formats are NETCDF3_CLASSIC and CDF5)", s)
}

func (f Format) String() string {
	switch f {
	case FormatClassic:
		return "NETCDF3_CLASSIC"
	case FormatCDF5:
		return "CDF5"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Encoding specifies per-variable storage for output files. The compression
// fields are accepted for configuration compatibility but are a no-op: both
// supported containers are uncompressed, as in the NETCDF3 variants of the
// reference tooling.
type Encoding struct {
	Dtype string // "float32" (default) or "float64"
	Zlib  bool
	Level int
}

// OutputDescriptor carries the output-side parameters shared by the
// extraction and aggregation stages.
type OutputDescriptor struct {
	Root      string // output tree root
	Prefix    string // filename tag
	Format    Format
	Overwrite bool
	Encoding  map[string]Encoding // per-data-variable storage
	Attrs     map[string]string   // global attributes for every written file
	FillValue float64             // missing-data marker
}

// DefaultOutput returns an OutputDescriptor with the standard attribute set:
// CF-1.6 convention tag, source model name, provenance string, and a zero
// fill value.
func DefaultOutput(root, prefix string) OutputDescriptor {
	return OutputDescriptor{
		Root:     root,
		Prefix:   prefix,
		Format:   FormatClassic,
		Encoding: make(map[string]Encoding),
		Attrs: map[string]string{
			"Conventions": "CF-1.6",
			"source":      "MITgcm",
			"description": "NetCDF files extracted using the Go library llcex (https://github.com/oceanmodeling/llcex)",
		},
	}
}

func (o OutputDescriptor) encodingFor(name string) Encoding {
	e := o.Encoding[name]
	if e.Dtype == "" {
		e.Dtype = "float32"
	}
	return e
}

// gridPath returns the location of the static grid file for this output tree.
func (o OutputDescriptor) gridPath() string {
	return filepath.Join(o.Root, "grid", o.Prefix+"_grid.nc")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeIfAbsent writes ds to path unless the file already exists and
// overwriting is disabled, in which case the write is skipped with a notice.
// The returned boolean reports whether a file was written.
func writeIfAbsent(path string, ds *Dataset, out OutputDescriptor) (bool, error) {
	if fileExists(path) && !out.Overwrite {
		logger.WithField("path", path).Info("file already exists, skipping the extraction")
		return false, nil
	}
	logger.WithField("path", path).Debug("extracting file")
	if err := WriteDataset(path, ds, out); err != nil {
		return false, err
	}
	return true, nil
}

// WriteDataset writes ds to path in the descriptor's format. The file is
// staged under a temporary name in the target directory and renamed into
// place, so an interrupted write can never leave a partial file at path.
// Missing directories are created.
func WriteDataset(path string, ds *Dataset, out OutputDescriptor) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("llcex: creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("llcex: staging output file: %w", err)
	}
	tmpName := tmp.Name()
	switch out.Format {
	case FormatClassic:
		err = writeClassic(tmp, ds, out)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
	case FormatCDF5:
		// The CDF5 writer manages the file itself.
		tmp.Close()
		err = writeCDF5(tmpName, ds, out)
	default:
		tmp.Close()
		err = fmt.Errorf("llcex: invalid file format %v", out.Format)
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("llcex: writing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("llcex: placing %s: %w", path, err)
	}
	return nil
}

// ReadDataset reads a dataset previously written by WriteDataset.
func ReadDataset(path string, format Format) (*Dataset, error) {
	switch format {
	case FormatClassic:
		return readClassic(path)
	case FormatCDF5:
		return readCDF5(path)
	}
	return nil, fmt.Errorf("llcex: invalid file format %v", format)
}

// timeUnits is the epoch convention used for the time coordinate in every
// written file.
const timeUnits = "seconds since 1970-01-01 00:00:00"

func timeSeconds(times []time.Time) []float64 {
	o := make([]float64, len(times))
	for i, t := range times {
		o[i] = float64(t.Unix())
	}
	return o
}

// coordList returns the sorted coordinate names, for the global
// "coordinates" attribute that lets readers classify variables.
func coordList(ds *Dataset) []string {
	o := make([]string, 0, len(ds.Coords))
	for n := range ds.Coords {
		o = append(o, n)
	}
	sort.Strings(o)
	return o
}

func dtypeFor(ds *Dataset, out OutputDescriptor, name string) string {
	if _, ok := ds.DataVars[name]; ok {
		return out.encodingFor(name).Dtype
	}
	return "float64" // grid coordinates keep full precision
}

func writeClassic(ff *os.File, ds *Dataset, out OutputDescriptor) error {
	dims := make([]string, len(ds.Dims))
	lengths := make([]int, len(ds.Dims))
	for i, d := range ds.Dims {
		dims[i] = d.Name
		lengths[i] = d.Length
	}
	h := cdf.NewHeader(dims, lengths)

	attrNames := make([]string, 0, len(out.Attrs))
	for k := range out.Attrs {
		attrNames = append(attrNames, k)
	}
	sort.Strings(attrNames)
	for _, k := range attrNames {
		h.AddAttribute("", k, out.Attrs[k])
	}
	h.AddAttribute("", "coordinates", strings.Join(coordList(ds), " "))
	if ds.TimeDim != "" {
		h.AddAttribute("", "time_coordinate", ds.TimeDim)
		h.AddVariable(ds.TimeDim, []string{ds.TimeDim}, []float64{0})
		h.AddAttribute(ds.TimeDim, "units", timeUnits)
	}

	names := ds.VarNames()
	for _, name := range names {
		v, _ := ds.variable(name)
		switch dtypeFor(ds, out, name) {
		case "float64":
			h.AddVariable(name, v.Dims, []float64{0})
			h.AddAttribute(name, "_FillValue", []float64{out.FillValue})
		default:
			h.AddVariable(name, v.Dims, []float32{0})
			h.AddAttribute(name, "_FillValue", []float32{float32(out.FillValue)})
		}
		if v.Description != "" {
			h.AddAttribute(name, "description", v.Description)
		}
		if v.Units != "" {
			h.AddAttribute(name, "units", v.Units)
		}
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("building netcdf header: %v", errs[0])
	}

	f, err := cdf.Create(ff, h) // writes the header to ff
	if err != nil {
		return err
	}
	if ds.TimeDim != "" {
		if err := writeSlab(f, ds.TimeDim, timeSeconds(ds.Times)); err != nil {
			return err
		}
	}
	for _, name := range names {
		v, _ := ds.variable(name)
		if err := writeNCF(f, name, v.Data, dtypeFor(ds, out, name)); err != nil {
			return fmt.Errorf("writing variable %s: %w", name, err)
		}
	}
	return cdf.UpdateNumRecs(ff)
}

// writeNCF writes one dense array to an open netcdf file, staging the
// elements in a buffer of the storage dtype.
func writeNCF(f *cdf.File, name string, data *sparse.DenseArray, dtype string) error {
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}
	if dtype == "float64" {
		return writeSlab(f, name, data.Elements)
	}
	buf := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		buf[i] = float32(e)
	}
	return writeSlab(f, name, buf)
}

func writeSlab(f *cdf.File, name string, buf interface{}) error {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	_, err := w.Write(buf)
	return err
}

func readClassic(path string) (*Dataset, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("llcex: opening %s: %w", path, err)
	}

	ds := NewDataset()
	coordSet := make(map[string]bool)
	if c := stringAttr(f.Header.GetAttribute("", "coordinates")); c != "" {
		for _, n := range strings.Fields(c) {
			coordSet[n] = true
		}
	}
	timeDim := stringAttr(f.Header.GetAttribute("", "time_coordinate"))
	for _, k := range f.Header.Attributes("") {
		if k == "coordinates" || k == "time_coordinate" {
			continue
		}
		if s := stringAttr(f.Header.GetAttribute("", k)); s != "" {
			ds.Attrs[k] = s
		}
	}

	for _, name := range f.Header.Variables() {
		lengths := f.Header.Lengths(name)
		n := 1
		for _, l := range lengths {
			n *= l
		}
		buf := f.Header.ZeroValue(name, n)
		if _, err := f.Reader(name, nil, nil).Read(buf); err != nil {
			return nil, fmt.Errorf("llcex: reading variable %s from %s: %w", name, path, err)
		}
		data := sparse.ZerosDense(lengths...)
		if err := fillElements(data.Elements, buf); err != nil {
			return nil, fmt.Errorf("llcex: reading variable %s from %s: %w", name, path, err)
		}
		if name == timeDim {
			ds.TimeDim = timeDim
			ds.Times = make([]time.Time, len(data.Elements))
			for i, s := range data.Elements {
				ds.Times[i] = time.Unix(int64(s), 0).UTC()
			}
			ds.setDim(timeDim, len(ds.Times))
			continue
		}
		v := Variable{
			Dims:        f.Header.Dimensions(name),
			Description: stringAttr(f.Header.GetAttribute(name, "description")),
			Units:       stringAttr(f.Header.GetAttribute(name, "units")),
			Data:        data,
		}
		if coordSet[name] {
			ds.AddCoord(name, v)
		} else {
			ds.AddDataVar(name, v)
		}
	}
	return ds, nil
}

func stringAttr(a interface{}) string {
	if s, ok := a.(string); ok {
		return s
	}
	return ""
}

// fillElements copies a typed read buffer into a float64 element slice.
func fillElements(dst []float64, buf interface{}) error {
	switch b := buf.(type) {
	case []float64:
		copy(dst, b)
	case []float32:
		for i, e := range b {
			dst[i] = float64(e)
		}
	case []int32:
		for i, e := range b {
			dst[i] = float64(e)
		}
	case []int16:
		for i, e := range b {
			dst[i] = float64(e)
		}
	case []int8:
		for i, e := range b {
			dst[i] = float64(e)
		}
	default:
		return fmt.Errorf("unsupported storage type %T", buf)
	}
	return nil
}

func writeCDF5(path string, ds *Dataset, out OutputDescriptor) error {
	cw, err := nnc.OpenWriter(path)
	if err != nil {
		return err
	}
	gKeys := []string{"coordinates"}
	gVals := map[string]interface{}{"coordinates": strings.Join(coordList(ds), " ")}
	for k, v := range out.Attrs {
		gKeys = append(gKeys, k)
		gVals[k] = v
	}
	if ds.TimeDim != "" {
		gKeys = append(gKeys, "time_coordinate")
		gVals["time_coordinate"] = ds.TimeDim
	}
	sort.Strings(gKeys)
	global, err := util.NewOrderedMap(gKeys, gVals)
	if err != nil {
		return err
	}
	if err := cw.AddGlobalAttrs(global); err != nil {
		return err
	}

	if ds.TimeDim != "" {
		am, err := util.NewOrderedMap([]string{"units"}, map[string]interface{}{"units": timeUnits})
		if err != nil {
			return err
		}
		err = cw.AddVar(ds.TimeDim, api.Variable{
			Values:     timeSeconds(ds.Times),
			Dimensions: []string{ds.TimeDim},
			Attributes: am,
		})
		if err != nil {
			return err
		}
	}
	for _, name := range ds.VarNames() {
		v, _ := ds.variable(name)
		dtype := dtypeFor(ds, out, name)
		keys := []string{"_FillValue"}
		vals := map[string]interface{}{}
		if dtype == "float64" {
			vals["_FillValue"] = out.FillValue
		} else {
			vals["_FillValue"] = float32(out.FillValue)
		}
		if v.Description != "" {
			keys = append(keys, "description")
			vals["description"] = v.Description
		}
		if v.Units != "" {
			keys = append(keys, "units")
			vals["units"] = v.Units
		}
		am, err := util.NewOrderedMap(keys, vals)
		if err != nil {
			return err
		}
		err = cw.AddVar(name, api.Variable{
			Values:     nestValues(v.Data.Elements, v.Data.Shape, dtype),
			Dimensions: v.Dims,
			Attributes: am,
		})
		if err != nil {
			return fmt.Errorf("writing variable %s: %w", name, err)
		}
	}
	return cw.Close()
}

func readCDF5(path string) (*Dataset, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("llcex: opening %s: %w", path, err)
	}
	defer nc.Close()

	ds := NewDataset()
	coordSet := make(map[string]bool)
	var timeDim string
	ga := nc.Attributes()
	if c, has := ga.Get("coordinates"); has {
		for _, n := range strings.Fields(stringAttr(c)) {
			coordSet[n] = true
		}
	}
	if t, has := ga.Get("time_coordinate"); has {
		timeDim = stringAttr(t)
	}
	for _, k := range ga.Keys() {
		if k == "coordinates" || k == "time_coordinate" {
			continue
		}
		if a, has := ga.Get(k); has {
			if s := stringAttr(a); s != "" {
				ds.Attrs[k] = s
			}
		}
	}

	for _, name := range nc.ListVariables() {
		vr, err := nc.GetVariable(name)
		if err != nil {
			return nil, fmt.Errorf("llcex: reading variable %s from %s: %w", name, path, err)
		}
		elems, shape, err := flattenValues(vr.Values)
		if err != nil {
			return nil, fmt.Errorf("llcex: reading variable %s from %s: %w", name, path, err)
		}
		data := sparse.ZerosDense(shape...)
		copy(data.Elements, elems)
		if name == timeDim {
			ds.TimeDim = timeDim
			ds.Times = make([]time.Time, len(elems))
			for i, s := range elems {
				ds.Times[i] = time.Unix(int64(s), 0).UTC()
			}
			ds.setDim(timeDim, len(ds.Times))
			continue
		}
		v := Variable{Dims: vr.Dimensions, Data: data}
		if a, has := vr.Attributes.Get("description"); has {
			v.Description = stringAttr(a)
		}
		if a, has := vr.Attributes.Get("units"); has {
			v.Units = stringAttr(a)
		}
		if coordSet[name] {
			ds.AddCoord(name, v)
		} else {
			ds.AddDataVar(name, v)
		}
	}
	return ds, nil
}

// nestValues converts a flat element slice into the nested-slice value
// layout of the CDF5 writer, in the requested storage dtype.
func nestValues(elems []float64, shape []int, dtype string) interface{} {
	elemType := reflect.TypeOf(float32(0))
	if dtype == "float64" {
		elemType = reflect.TypeOf(float64(0))
	}
	t := elemType
	for range shape {
		t = reflect.SliceOf(t)
	}
	var build func(off int, shape []int, t reflect.Type) reflect.Value
	build = func(off int, shape []int, t reflect.Type) reflect.Value {
		n := shape[0]
		s := reflect.MakeSlice(t, n, n)
		if len(shape) == 1 {
			for i := 0; i < n; i++ {
				s.Index(i).Set(reflect.ValueOf(elems[off+i]).Convert(elemType))
			}
			return s
		}
		stride := 1
		for _, d := range shape[1:] {
			stride *= d
		}
		for i := 0; i < n; i++ {
			s.Index(i).Set(build(off+i*stride, shape[1:], t.Elem()))
		}
		return s
	}
	return build(0, shape, t).Interface()
}

// flattenValues converts a nested-slice variable value into a flat float64
// slice plus its shape.
func flattenValues(v interface{}) ([]float64, []int, error) {
	var shape []int
	rv := reflect.ValueOf(v)
	for t := rv; t.Kind() == reflect.Slice; t = t.Index(0) {
		shape = append(shape, t.Len())
		if t.Len() == 0 {
			break
		}
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	elems := make([]float64, 0, n)
	f64 := reflect.TypeOf(float64(0))
	var walk func(rv reflect.Value) error
	walk = func(rv reflect.Value) error {
		if rv.Kind() != reflect.Slice {
			if !rv.Type().ConvertibleTo(f64) {
				return fmt.Errorf("unsupported storage type %s", rv.Type())
			}
			elems = append(elems, rv.Convert(f64).Float())
			return nil
		}
		for i := 0; i < rv.Len(); i++ {
			if err := walk(rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rv); err != nil {
		return nil, nil, err
	}
	return elems, shape, nil
}
