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
	"fmt"
	"os"
	"sort"

	"github.com/lnashier/viper"
	"github.com/spf13/cast"

	"github.com/oceanmodeling/llcex"
)

// loadInput opens the configured input dataset and builds the output
// descriptor from the configuration.
func loadInput(cfg *viper.Viper) (*llcex.Dataset, llcex.OutputDescriptor, error) {
	var out llcex.OutputDescriptor
	in := os.ExpandEnv(cfg.GetString("InputFile"))
	if in == "" {
		return nil, out, fmt.Errorf("llcexutil: no input file; set the InputFile configuration variable")
	}
	format, err := llcex.ParseFormat(cfg.GetString("Format"))
	if err != nil {
		return nil, out, err
	}
	ds, err := llcex.ReadDataset(in, format)
	if err != nil {
		return nil, out, fmt.Errorf("llcexutil: reading input file: %w", err)
	}
	out, err = outputDescriptor(cfg)
	return ds, out, err
}

// outputDescriptor converts the output-side configuration variables into an
// OutputDescriptor. The per-variable encoding map applies the configured
// storage options to every extracted variable.
func outputDescriptor(cfg *viper.Viper) (llcex.OutputDescriptor, error) {
	out := llcex.DefaultOutput(os.ExpandEnv(cfg.GetString("OutputDir")), cfg.GetString("Prefix"))
	format, err := llcex.ParseFormat(cfg.GetString("Format"))
	if err != nil {
		return out, err
	}
	out.Format = format
	out.Overwrite = cfg.GetBool("Overwrite")
	enc := llcex.Encoding{
		Dtype: cfg.GetString("Encoding.Dtype"),
		Zlib:  cfg.GetBool("Encoding.Zlib"),
		Level: cast.ToInt(cfg.Get("Encoding.Level")),
	}
	for _, v := range cfg.GetStringSlice("Variables") {
		out.Encoding[v] = enc
	}
	return out, nil
}

// resolveSelection turns the configured bounding box into an index selection
// over the dataset's grid.
func resolveSelection(cfg *viper.Viper, ds *llcex.Dataset) (llcex.IndexSelection, error) {
	box, err := llcex.NewBoundingBox(
		cast.ToFloat64(cfg.Get("BBox.LatMin")),
		cast.ToFloat64(cfg.Get("BBox.LatMax")),
		cast.ToFloat64(cfg.Get("BBox.LonMin")),
		cast.ToFloat64(cfg.Get("BBox.LonMax")),
	)
	if err != nil {
		return nil, err
	}
	return llcex.Subset(ds, box, llcex.DefaultGridNames())
}

// runConfig converts the extraction-side configuration variables into a
// RunConfig.
func runConfig(cfg *viper.Viper, sel llcex.IndexSelection) (llcex.RunConfig, error) {
	mode, err := llcex.ParseMode(cfg.GetString("Concatenate"))
	if err != nil {
		return llcex.RunConfig{}, err
	}
	return llcex.RunConfig{
		Variables:   cfg.GetStringSlice("Variables"),
		ExtractGrid: cfg.GetBool("ExtractGrid"),
		Concatenate: mode,
		Selection:   sel,
	}, nil
}

func sortedSelectionDims(sel llcex.IndexSelection) []string {
	dims := make([]string, 0, len(sel))
	for d := range sel {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	return dims
}
