package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"scadalab/internal/app"
	"scadalab/internal/dataset"
	"scadalab/internal/exporter"
	"scadalab/internal/services"
	"scadalab/pkg/contracts"
	"scadalab/pkg/contracts/domain"
)

// Operations accepted by process
const (
	OpInterpolate = "interpolate"
	OpResample    = "resample"
	OpDerivative  = "derivative"
	OpIntegral    = "integral"
	OpArea        = "area"
	OpSmooth      = "smooth"
	OpConvert     = "convert"
)

var processOps = []string{OpInterpolate, OpResample, OpDerivative, OpIntegral, OpArea, OpSmooth, OpConvert}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			a, err := app.NewApplication(cfg)
			if err != nil {
				return err
			}
			return a.Run()
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port")
	return cmd
}

func newInspectCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Detect the schema of a file and validate it without processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := opts.service(cmd)
			if err != nil {
				return err
			}
			ins, err := svc.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ins)
		},
	}
}

type processOptions struct {
	op     string
	method string
	plugin string
	series []string
	params []string
	order  int
	from   string
	to     string
	upper  string
	lower  string
	name   string
	out    string
	noMask bool
	bom    bool
}

func newProcessCommand(opts *rootOptions) *cobra.Command {
	po := &processOptions{}
	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Load a file, apply one operation and print or export the result",
		Example: `  scadalab process line1.csv --op interpolate --method pchip --out filled.csv
  scadalab process line1.csv --op smooth --method savgol --params window_length=7,polyorder=2
  scadalab process line1.csv --op convert --series "TT101 [degC]" --to degF`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := opts.service(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			d, err := svc.Load(ctx, args[0])
			if err != nil {
				return err
			}
			result, err := po.apply(ctx, svc, d.ID)
			if err != nil {
				return err
			}
			return emit(cmd, svc, result, po.out, po.exportOptions())
		},
	}

	f := cmd.Flags()
	f.StringVar(&po.op, "op", "", "operation: "+strings.Join(processOps, ", "))
	f.StringVarP(&po.method, "method", "m", "", "method name")
	f.StringVar(&po.plugin, "plugin", "", "registered plugin to run instead of a built-in method")
	f.StringSliceVarP(&po.series, "series", "s", nil, "series ids or names (default: all)")
	f.StringSliceVar(&po.params, "params", nil, "method parameters as key=value pairs")
	f.IntVar(&po.order, "order", 1, "derivative order")
	f.StringVar(&po.from, "from", "", "source unit (default: the series unit)")
	f.StringVar(&po.to, "to", "", "target unit")
	f.StringVar(&po.upper, "upper", "", "upper series for area")
	f.StringVar(&po.lower, "lower", "", "lower series for area")
	f.StringVar(&po.name, "name", "", "name of the area series")
	f.StringVarP(&po.out, "out", "o", "", "export to this file (.csv or .xlsx)")
	f.BoolVar(&po.noMask, "no-mask", false, "omit the interpolated-point columns from the export")
	f.BoolVar(&po.bom, "bom", false, "prefix CSV exports with a UTF-8 BOM")
	cmd.MarkFlagRequired("op")
	return cmd
}

func (po *processOptions) apply(ctx context.Context, svc *services.ProcessingService, id string) (*dataset.Dataset, error) {
	params, err := domain.ParseParams(po.params)
	if err != nil {
		return nil, err
	}
	req := services.SeriesRequest{Series: po.series, Method: po.method, Params: params, Plugin: po.plugin}

	switch po.op {
	case OpInterpolate:
		return svc.Interpolate(ctx, id, req)
	case OpResample:
		return svc.Resample(ctx, id, req)
	case OpIntegral:
		return svc.Integral(ctx, id, req)
	case OpSmooth:
		return svc.Smooth(ctx, id, req)
	case OpDerivative:
		return svc.Derivative(ctx, id, services.DerivativeRequest{
			Series: po.series,
			Order:  po.order,
			Method: po.method,
			Params: params,
		})
	case OpArea:
		return svc.AreaBetween(ctx, id, services.AreaRequest{
			Upper:  po.upper,
			Lower:  po.lower,
			Name:   po.name,
			Params: params,
		})
	case OpConvert:
		return svc.ConvertUnits(ctx, id, services.ConvertRequest{Series: po.series, From: po.from, To: po.to})
	default:
		return nil, fmt.Errorf("unknown operation %q (want one of %s)", po.op, strings.Join(processOps, ", "))
	}
}

func (po *processOptions) exportOptions() exporter.DatasetOptions {
	opts := exporter.DefaultDatasetOptions()
	opts.IncludeMask = !po.noMask
	opts.BOMPrefix = po.bom
	return opts
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var (
		method string
		plugin string
		params []string
		out    string
		noMask bool
	)
	cmd := &cobra.Command{
		Use:   "sync <file> <file>...",
		Short: "Align every series of several files onto one time axis",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := domain.ParseParams(params)
			if err != nil {
				return err
			}
			svc, _, err := opts.service(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			loaded, err := svc.LoadBatch(ctx, args)
			if err != nil {
				return err
			}
			req := services.SyncRequest{Method: method, Plugin: plugin, Params: parsed}
			for _, d := range loaded {
				req.Sources = append(req.Sources, services.SyncSource{DatasetID: d.ID})
			}
			synced, err := svc.Synchronize(ctx, req)
			if err != nil {
				return err
			}
			exp := exporter.DefaultDatasetOptions()
			exp.IncludeMask = !noMask
			return emit(cmd, svc, synced, out, exp)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&method, "method", "m", "common_grid_interpolate", "synchronization method")
	f.StringVar(&plugin, "plugin", "", "registered plugin to run instead of a built-in method")
	f.StringSliceVar(&params, "params", nil, "method parameters as key=value pairs")
	f.StringVarP(&out, "out", "o", "", "export to this file (.csv or .xlsx)")
	f.BoolVar(&noMask, "no-mask", false, "omit the interpolated-point columns from the export")
	return cmd
}

func newMethodsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the available processing methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := opts.service(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), svc.Methods())
		},
	}
}

func newVersionCommand() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), contracts.Version)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), contracts.GetFullVersionString())
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print the version number only")
	return cmd
}

// emit exports d when out is set, then prints the dataset summary
func emit(cmd *cobra.Command, svc *services.ProcessingService, d *dataset.Dataset, out string, opts exporter.DatasetOptions) error {
	summary := map[string]interface{}{"dataset": d.Summarize()}
	if out != "" {
		path, err := svc.Export(cmd.Context(), d.ID, out, opts)
		if err != nil {
			return err
		}
		summary["exported"] = path
	}
	return printJSON(cmd.OutOrStdout(), summary)
}

// signalContext cancels on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
