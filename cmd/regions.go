package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/forest-guardian/mine-impact-monitor/internal/delivery"
	"github.com/forest-guardian/mine-impact-monitor/internal/final"
	"github.com/forest-guardian/mine-impact-monitor/internal/region"
	"github.com/forest-guardian/mine-impact-monitor/internal/vector"
	"github.com/forest-guardian/mine-impact-monitor/output"
	"github.com/spf13/cobra"
)

const overpassTimeout = 3 * time.Minute

type regionFlags struct {
	path         string
	overpassBBox string
	maxRegions   int
	bufferMeters float64
	prefix       string
}

func (f *regionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.path, "regions", "", "mine polygons (GeoJSON, or any vector format GDAL reads)")
	cmd.Flags().StringVar(&f.overpassBBox, "overpass-bbox", "", "look up quarries in OpenStreetMap inside south,west,north,east")
	cmd.Flags().IntVar(&f.maxRegions, "max-regions", 0, "assess at most this many regions (0 for all)")
	cmd.Flags().Float64Var(&f.bufferMeters, "buffer", 0, "buffer around each polygon in meters")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "region id prefix")
	cmd.MarkFlagsMutuallyExclusive("regions", "overpass-bbox")
}

func (a *app) provider(cmd *cobra.Command, f *regionFlags) (region.Provider, error) {
	s := a.settings
	if cmd.Flags().Changed("max-regions") {
		s.MaxRegions = f.maxRegions
	}
	if cmd.Flags().Changed("buffer") {
		s.BufferMeters = f.bufferMeters
	}
	if cmd.Flags().Changed("prefix") {
		s.RegionPrefix = f.prefix
	}

	if f.overpassBBox != "" {
		bbox, err := region.ParseBBox(f.overpassBBox)
		if err != nil {
			return nil, err
		}
		return region.NewOverpassProvider(s.OverpassURL, overpassTimeout, bbox, s.RegionPrefix, s.BufferMeters, s.MaxRegions), nil
	}

	path := f.path
	if path == "" {
		path = filepath.Join(s.VectorsDir(), "mines.geojson")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return region.NewGeoJSONProvider(path, s.RegionPrefix, s.BufferMeters, s.MaxRegions), nil
	default:
		return vector.NewProvider(path, s.RegionPrefix, s.BufferMeters, s.MaxRegions), nil
	}
}

func regionsCommand(a *app) *cobra.Command {
	var (
		flags  regionFlags
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "regions",
		Short: "List the monitored regions and their analysis extents",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := a.provider(cmd, &flags)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = a.settings.OutputDir()
			}
			return listRegions(cmd.Context(), provider, outDir)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&outDir, "out", "", "output folder (default ROOT_PATH/outputs)")
	return cmd
}

func listRegions(ctx context.Context, provider region.Provider, outDir string) error {
	regions, rejected, err := delivery.LoadRegions(ctx, provider)
	if err != nil {
		return err
	}

	color.Green("\nRegions:")
	for _, row := range delivery.RegionRows(regions) {
		fmt.Printf("%s  %-30s  [%.5f, %.5f, %.5f, %.5f]\n",
			row.RegionID, row.Name, row.MinLon, row.MinLat, row.MaxLon, row.MaxLat)
	}
	for _, r := range rejected {
		color.Yellow("rejected feature %d (%s): %s", r.Index, r.Name, r.Reason)
	}

	rowsPath := filepath.Join(outDir, final.RegionsFileName)
	if err := final.SaveRegions(rowsPath, delivery.RegionRows(regions)); err != nil {
		return err
	}
	geojsonPath := filepath.Join(outDir, delivery.RegionsGeoJSONFileName)
	if err := output.CreateRegionsGeoJSON(geojsonPath, regions, nil); err != nil {
		return err
	}

	color.Green("\n%d regions, %d rejected", len(regions), len(rejected))
	fmt.Println("Region table:", rowsPath)
	fmt.Println("Region GeoJSON:", geojsonPath)
	return nil
}
