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

// Package llcexutil provides the command-line interface and configuration
// handling for the llcex extraction pipeline.
package llcexutil

import (
	"fmt"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/oceanmodeling/llcex"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to llcex.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "InputFile",
			usage: `
              InputFile is the path of the NetCDF dataset holding the model
              output to extract from, as produced by an upstream loader.`,
			shorthand:  "i",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags(), subsetCmd.Flags()},
		},
		{
			name: "OutputDir",
			usage: `
              OutputDir is the root of the output file tree.`,
			shorthand:  "o",
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "Prefix",
			usage: `
              Prefix is the tag at the beginning of every output file name.`,
			defaultVal: "llc",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "Format",
			usage: `
              Format selects the output file container: NETCDF3_CLASSIC or
              CDF5.`,
			defaultVal: "NETCDF3_CLASSIC",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "Overwrite",
			usage: `
              Overwrite replaces existing output files instead of skipping
              them.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "Variables",
			usage: `
              Variables lists the data variables to extract.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "ExtractGrid",
			usage: `
              ExtractGrid writes the static grid file before extraction.
              When false, the grid file from a previous run is re-attached
              to the input dataset instead.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "Concatenate",
			usage: `
              Concatenate re-groups the per-timestep files after extraction:
              none, daily, monthly, or yearly.`,
			defaultVal: "none",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "BBox.LatMin",
			usage: `
              BBox.LatMin is the minimum latitude of the extraction region.`,
			defaultVal: -90.0,
			flagsets:   []*pflag.FlagSet{extractCmd.Flags(), subsetCmd.Flags()},
		},
		{
			name: "BBox.LatMax",
			usage: `
              BBox.LatMax is the maximum latitude of the extraction region.`,
			defaultVal: 90.0,
			flagsets:   []*pflag.FlagSet{extractCmd.Flags(), subsetCmd.Flags()},
		},
		{
			name: "BBox.LonMin",
			usage: `
              BBox.LonMin is the minimum longitude of the extraction region.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{extractCmd.Flags(), subsetCmd.Flags()},
		},
		{
			name: "BBox.LonMax",
			usage: `
              BBox.LonMax is the maximum longitude of the extraction region.`,
			defaultVal: 360.0,
			flagsets:   []*pflag.FlagSet{extractCmd.Flags(), subsetCmd.Flags()},
		},
		{
			name: "Encoding.Dtype",
			usage: `
              Encoding.Dtype is the storage type of extracted variables:
              float32 or float64.`,
			defaultVal: "float32",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "Encoding.Zlib",
			usage: `
              Encoding.Zlib requests zlib compression of aggregated files.
              It is recorded but has no effect for the NETCDF3 container
              variants supported here.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "Encoding.Level",
			usage: `
              Encoding.Level is the compression level accompanying
              Encoding.Zlib.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("LLCEX")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(extractCmd)
	Root.AddCommand(subsetCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("llcex: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "llcex",
	Short: "Extract regions of ocean-model output to NetCDF file trees.",
	Long: `llcex extracts a geographic region from ocean general circulation model
output and writes it to a tree of NetCDF files partitioned by variable and by
time granularity.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'LLCEX_var' where 'var' is
the name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of llcex.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("llcex v%s\n", llcex.Version)
	},
	DisableAutoGenTag: true,
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run the extraction pipeline.",
	Long: `extract resolves the configured bounding box against the input dataset's
grid, writes the static grid file and one file per (variable, timestep), and
optionally re-groups the per-timestep files into daily, monthly, or yearly
aggregates. Re-running over existing output redoes only the missing work
unless --Overwrite is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, out, err := loadInput(Cfg)
		if err != nil {
			return err
		}
		sel, err := resolveSelection(Cfg, ds)
		if err != nil {
			return err
		}
		runCfg, err := runConfig(Cfg, sel)
		if err != nil {
			return err
		}
		report, err := llcex.Run(ds, runCfg, out)
		if report != nil {
			logrus.WithFields(logrus.Fields{
				"written":    report.Written,
				"skipped":    report.Skipped,
				"aggregated": report.Aggregated,
				"grid":       report.GridWritten,
			}).Info("run finished")
		}
		return err
	},
	DisableAutoGenTag: true,
}

var subsetCmd = &cobra.Command{
	Use:   "subset",
	Short: "Resolve a bounding box to an index selection.",
	Long: `subset resolves the configured bounding box against the input dataset's
grid and prints the resulting per-dimension index ranges and face set
without writing any output files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, _, err := loadInput(Cfg)
		if err != nil {
			return err
		}
		sel, err := resolveSelection(Cfg, ds)
		if err != nil {
			return err
		}
		for _, dim := range sortedSelectionDims(sel) {
			ix := sel[dim]
			if ix.Indices != nil {
				cmd.Printf("%s: %v\n", dim, ix.Indices)
			} else {
				cmd.Printf("%s: [%d, %d)\n", dim, ix.Start, ix.Stop)
			}
		}
		return nil
	},
	DisableAutoGenTag: true,
}
