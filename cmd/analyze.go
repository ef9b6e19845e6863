package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/site-density/internal/analysis"
	"github.com/sells-group/site-density/internal/config"
	"github.com/sells-group/site-density/internal/export"
	"github.com/sells-group/site-density/internal/ingest"
	"github.com/sells-group/site-density/internal/model"
)

var (
	analyzeInput      string
	analyzeRadiusKM   float64
	analyzeThresholdM float64
	analyzeMode       string
	analyzeRural      float64
	analyzeSuburban   float64
	analyzeUrban      float64
	analyzePresetFile string
	analyzePreset     string
	analyzeOutput     string
	analyzeFormat     string
	analyzeSave       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the density analysis pipeline over a site table",
	Long: `Reads a site table (CSV, XLSX, or point shapefile; local path or
http/ftp URL), classifies every site into a density tier, groups co-located
sites, and writes the enriched table.

Examples:
  # Quantile classification with defaults
  site-density analyze --input sites.csv

  # Fixed thresholds, GeoJSON output
  site-density analyze --input sites.csv --mode threshold --format geojson

  # Named threshold preset from a yaml file
  site-density analyze --input sites.csv --mode threshold --preset-file presets.yaml --preset metro`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		params, err := resolveParams()
		if err != nil {
			return err
		}

		sites, messages, err := loadSites(ctx, analyzeInput)
		if err != nil {
			return eris.Wrap(err, "analyze: load sites")
		}
		for _, msg := range messages {
			zap.L().Warn("analyze: " + msg)
		}

		pipe := analysis.New(cfg.Analysis.Workers)
		result, err := pipe.Run(ctx, sites, params)
		if err != nil {
			return eris.Wrap(err, "analyze: run pipeline")
		}
		result.Messages = append(messages, result.Messages...)

		if analyzeSave {
			if err := saveRun(ctx, analyzeInput, params, result); err != nil {
				return err
			}
		}

		return writeResult(result)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeInput, "input", "", "site table path or URL (required)")
	analyzeCmd.Flags().Float64Var(&analyzeRadiusKM, "radius-km", 0, "density search radius in km (default from config)")
	analyzeCmd.Flags().Float64Var(&analyzeThresholdM, "threshold-m", 0, "co-location threshold in meters (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeMode, "mode", "", "classification mode: quantile or threshold (default from config)")
	analyzeCmd.Flags().Float64Var(&analyzeRural, "rural", 0, "rural density cutoff, threshold mode only")
	analyzeCmd.Flags().Float64Var(&analyzeSuburban, "suburban", 0, "suburban density cutoff, threshold mode only")
	analyzeCmd.Flags().Float64Var(&analyzeUrban, "urban", 0, "urban density cutoff, threshold mode only")
	analyzeCmd.Flags().StringVar(&analyzePresetFile, "preset-file", "", "yaml file with named threshold presets")
	analyzeCmd.Flags().StringVar(&analyzePreset, "preset", "", "threshold preset name from --preset-file")
	analyzeCmd.Flags().StringVar(&analyzeOutput, "output", "", "write result to file (default: stdout)")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "csv", "output format: csv, json, or geojson")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "persist the run in the configured store")
	_ = analyzeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(analyzeCmd)
}

// resolveParams overlays flags and presets onto the configured defaults.
func resolveParams() (model.AnalysisParams, error) {
	params := cfg.Analysis.Params()

	if analyzeRadiusKM != 0 {
		params.RadiusKM = analyzeRadiusKM
	}
	if analyzeThresholdM != 0 {
		params.CoLocationThresholdM = analyzeThresholdM
	}
	if analyzeMode != "" {
		params.Mode = analyzeMode
	}
	if analyzeRural != 0 {
		params.RuralThreshold = analyzeRural
	}
	if analyzeSuburban != 0 {
		params.SuburbanThreshold = analyzeSuburban
	}
	if analyzeUrban != 0 {
		params.UrbanThreshold = analyzeUrban
	}

	if analyzePreset != "" {
		if analyzePresetFile == "" {
			return params, eris.New("analyze: --preset requires --preset-file")
		}
		presets, err := config.LoadPresets(analyzePresetFile)
		if err != nil {
			return params, err
		}
		preset, ok := presets[analyzePreset]
		if !ok {
			return params, eris.Errorf("analyze: preset %q not found in %s", analyzePreset, analyzePresetFile)
		}
		params.RuralThreshold = preset.Rural
		params.SuburbanThreshold = preset.Suburban
		params.UrbanThreshold = preset.Urban
	}

	return params, params.Validate()
}

// loadSites opens the source and dispatches on file extension.
func loadSites(ctx context.Context, source string) ([]model.Site, []string, error) {
	ext := strings.ToLower(filepath.Ext(source))

	switch ext {
	case ".shp":
		return ingest.ReadShapefile(ctx, source)
	case ".xlsx":
		if isRemote(source) {
			path, cleanup, err := fetchToTemp(ctx, source, ".xlsx")
			if err != nil {
				return nil, nil, err
			}
			defer cleanup()
			return ingest.ReadXLSX(ctx, path)
		}
		return ingest.ReadXLSX(ctx, source)
	default:
		fetcher := ingest.NewFetcher(fetchOptions())
		rc, err := fetcher.Open(ctx, source)
		if err != nil {
			return nil, nil, err
		}
		defer rc.Close() //nolint:errcheck
		return ingest.ReadCSV(ctx, rc)
	}
}

func isRemote(source string) bool {
	return strings.Contains(source, "://")
}

// fetchToTemp downloads a remote source to a temp file for readers that
// need a path instead of a stream.
func fetchToTemp(ctx context.Context, source, ext string) (string, func(), error) {
	fetcher := ingest.NewFetcher(fetchOptions())
	rc, err := fetcher.Open(ctx, source)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close() //nolint:errcheck

	tmp, err := os.CreateTemp("", "site-density-*"+ext)
	if err != nil {
		return "", nil, eris.Wrap(err, "analyze: create temp file")
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, eris.Wrap(err, "analyze: download source")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, eris.Wrap(err, "analyze: close temp file")
	}
	return tmp.Name(), func() { _ = os.Remove(tmp.Name()) }, nil
}

func fetchOptions() ingest.FetchOptions {
	return ingest.FetchOptions{
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
		RateLimit:  rateLimit(cfg.Fetch.RateLimit),
	}
}

// saveRun persists the completed analysis in the configured store.
func saveRun(ctx context.Context, source string, params model.AnalysisParams, result *model.AnalysisResult) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	run, err := st.CreateRun(ctx, source, params)
	if err != nil {
		return eris.Wrap(err, "analyze: create run")
	}
	if err := st.SaveRunResult(ctx, run.ID, result); err != nil {
		return eris.Wrap(err, "analyze: save run result")
	}
	zap.L().Info("analyze: run saved", zap.String("run_id", run.ID))
	return nil
}

// writeResult writes the enriched table in the selected format.
func writeResult(result *model.AnalysisResult) error {
	var w io.Writer = os.Stdout
	if analyzeOutput != "" {
		f, err := os.Create(analyzeOutput)
		if err != nil {
			return eris.Wrap(err, "analyze: create output file")
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	switch analyzeFormat {
	case "csv":
		return export.WriteCSV(w, result.Sites)
	case "geojson":
		return export.WriteGeoJSON(w, result.Sites)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(result), "analyze: encode json")
	default:
		return eris.Errorf("analyze: unknown format %q", analyzeFormat)
	}
}
