package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"vigil/internal/analysis"
	"vigil/internal/diagnostics"
	"vigil/internal/parser"
	"vigil/internal/report"
	"vigil/internal/watch"
	"vigil/internal/workspace"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] <file>...",
	Short: "Validate files once and print their diagnostics",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().Int("jobs", 0, "max parallel workers (0=auto)")
}

type checked struct {
	path    string
	markers []diagnostics.Marker
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	jobs, _ := cmd.Flags().GetInt("jobs")

	// Results are not kept between runs.
	analyzer, err := analysis.New(cfg, nil)
	if err != nil {
		return err
	}
	defer analyzer.Close()

	ws := workspace.New()
	results := make([]checked, len(args))

	g, ctx := errgroup.WithContext(cmd.Context())
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, path := range args {
		g.Go(func() error {
			markers, err := checkFile(ctx, ws, analyzer, cfg.Extensions, path)
			if err != nil {
				return err
			}
			results[i] = checked{path: path, markers: markers}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printer := report.NewPrinter(cmd.OutOrStdout())
	for _, r := range results {
		printer.Print(r.path, r.markers)
	}
	printer.Summary(len(results))
	if errs, _ := printer.Counts(); errs > 0 {
		return fmt.Errorf("found %d error(s)", errs)
	}
	return nil
}

func checkFile(
	ctx context.Context,
	ws *workspace.Workspace,
	analyzer *analysis.SyntaxAnalyzer,
	extensions map[string]string,
	path string,
) ([]diagnostics.Marker, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	doc, err := ws.Open(watch.URI(abs), parser.LanguageForPath(abs, extensions), 1, string(data))
	if err != nil {
		return nil, err
	}
	defer ws.Close(doc.URI())

	markers, err := analyzer.Analyze(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return markers, nil
}
