package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fibermap/internal/application"
	"fibermap/internal/domain"
	"fibermap/internal/infrastructure/memory"
	"fibermap/internal/logging"
	"fibermap/pkg/geodesy"
	"fibermap/pkg/localization"
)

// distanceTolerance - допустима розбіжність між збереженою і перерахованою відстанню точки
const distanceTolerance = 1e-6

type simulateOptions struct {
	topologyPath string
	distanceKm   float64
	probe        string
	direction    string
	reference    string
	highBelow    float64
	mediumBelow  float64
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "otdr-locate",
		Short:         "Locate fiber faults from OTDR readings against a topology file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	logger := func(cmd *cobra.Command) logging.Logger {
		return logging.New(logging.Config{Level: logLevel, Format: "text", Output: cmd.ErrOrStderr()})
	}

	root.AddCommand(newSimulateCmd(logger), newCheckCmd(logger), newDistanceCmd())
	return root
}

func newSimulateCmd(logger func(*cobra.Command) logging.Logger) *cobra.Command {
	opts := simulateOptions{}
	defaults := localization.DefaultThresholds()

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Localize one reading and print the result as JSON",
		Example: `  otdr-locate simulate -t ligne.yaml -d 1.5
  otdr-locate simulate -t ligne.yaml -d 0.4 --probe intermediate --reference <point-id>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), logger(cmd), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.topologyPath, "topology", "t", "", "YAML topology file")
	f.Float64VarP(&opts.distanceKm, "distance", "d", 0, "Raw OTDR distance in km")
	f.StringVar(&opts.probe, "probe", string(domain.ProbeHeadEnd), "Probe position: head_end, tail_end, intermediate")
	f.StringVar(&opts.direction, "direction", "", "Scan direction: toward_head_end, toward_tail_end (default depends on probe)")
	f.StringVar(&opts.reference, "reference", "", "Reference point ID for an intermediate probe")
	f.Float64Var(&opts.highBelow, "high-below", defaults.HighBelowKm, "Offset under which precision is high (km)")
	f.Float64Var(&opts.mediumBelow, "medium-below", defaults.MediumBelowKm, "Offset under which precision is medium (km)")
	_ = cmd.MarkFlagRequired("topology")
	_ = cmd.MarkFlagRequired("distance")
	return cmd
}

func runSimulate(ctx context.Context, out io.Writer, log logging.Logger, opts simulateOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	topo, err := loadTopologyFile(opts.topologyPath)
	if err != nil {
		return err
	}

	in := application.ReadingInput{
		LiaisonID:     topo.Liaison.ID,
		RawDistanceKm: opts.distanceKm,
		ProbePosition: domain.ProbePosition(opts.probe),
		ScanDirection: domain.ScanDirection(opts.direction),
	}
	if in.ScanDirection == "" {
		in.ScanDirection = defaultDirection(in.ProbePosition)
	}
	if opts.reference != "" {
		ref, err := uuid.Parse(opts.reference)
		if err != nil {
			return fmt.Errorf("invalid reference point id: %w", err)
		}
		in.ReferencePointID = &ref
	}

	store := memory.NewStore()
	if err := store.CreateTopology(ctx, topo); err != nil {
		return fmt.Errorf("topology %s: %w", opts.topologyPath, err)
	}
	engine := localization.NewEngine(localization.Thresholds{HighBelowKm: opts.highBelow, MediumBelowKm: opts.mediumBelow})
	faults := application.NewFaultService(store, store, store.Readings(), store.Faults(), engine, nil, log, nil)

	result, err := faults.SimulateLocalization(ctx, in)
	if err != nil {
		return err
	}
	return writeJSON(out, result)
}

func defaultDirection(p domain.ProbePosition) domain.ScanDirection {
	if p == domain.ProbeTailEnd {
		return domain.ScanTowardHeadEnd
	}
	return domain.ScanTowardTailEnd
}

// checkReport - результат перевірки файлу топології
type checkReport struct {
	Liaison         string          `json:"liaison"`
	Points          int             `json:"points"`
	Segments        int             `json:"segments"`
	TotalLengthKm   float64         `json:"total_length_km"`
	TotalCableKm    float64         `json:"total_cable_km"`
	HeadAnchored    bool            `json:"head_anchored"`
	TailAnchored    bool            `json:"tail_anchored"`
	DistanceChanges []distanceDelta `json:"distance_changes,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
}

type distanceDelta struct {
	PointID  uuid.UUID `json:"point_id"`
	Name     string    `json:"name"`
	StoredKm float64   `json:"stored_km"`
	RecompKm float64   `json:"recomputed_km"`
}

func newCheckCmd(logger func(*cobra.Command) logging.Logger) *cobra.Command {
	var topologyPath string
	var strict bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a topology file and compare stored distances with recomputed ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runCheck(cmd.Context(), logger(cmd), topologyPath)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if strict && (len(report.DistanceChanges) > 0 || len(report.Warnings) > 0) {
				return fmt.Errorf("topology %s has %d distance changes and %d warnings",
					topologyPath, len(report.DistanceChanges), len(report.Warnings))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&topologyPath, "topology", "t", "", "YAML topology file")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when distances or lengths disagree")
	_ = cmd.MarkFlagRequired("topology")
	return cmd
}

func runCheck(ctx context.Context, log logging.Logger, path string) (*checkReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	topo, err := loadTopologyFile(path)
	if err != nil {
		return nil, err
	}
	stored := make(map[uuid.UUID]float64, len(topo.Points))
	for _, p := range topo.Points {
		stored[p.ID] = p.DistanceFromHeadEndKm
	}

	store := memory.NewStore()
	if err := store.CreateTopology(ctx, topo); err != nil {
		return nil, fmt.Errorf("topology %s: %w", path, err)
	}
	svc := application.NewTopologyService(store, store, 1, log, nil)
	recomputed, err := svc.RecomputeCumulativeDistances(ctx, topo.Liaison.ID)
	if err != nil {
		return nil, err
	}

	report := &checkReport{
		Liaison:       recomputed.Liaison.Name,
		Points:        len(recomputed.Points),
		Segments:      len(recomputed.Segments),
		TotalLengthKm: recomputed.Liaison.TotalLengthKm,
		TotalCableKm:  recomputed.TotalCableKm(),
		HeadAnchored:  recomputed.HeadAnchored(),
		TailAnchored:  recomputed.TailAnchored(),
	}
	for _, p := range recomputed.Points {
		if math.Abs(p.DistanceFromHeadEndKm-stored[p.ID]) > distanceTolerance {
			report.DistanceChanges = append(report.DistanceChanges, distanceDelta{
				PointID: p.ID, Name: p.Name, StoredKm: stored[p.ID], RecompKm: p.DistanceFromHeadEndKm,
			})
		}
	}
	if math.Abs(report.TotalCableKm-report.TotalLengthKm) > distanceTolerance {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"segment cables sum to %.3f km but the liaison length is %.3f km", report.TotalCableKm, report.TotalLengthKm))
	}
	for _, s := range recomputed.Segments {
		if s.GPSDistanceKm > 0 && s.CableDistanceKm < s.GPSDistanceKm {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"segment %s: cable %.3f km is shorter than the straight line %.3f km", s.ID, s.CableDistanceKm, s.GPSDistanceKm))
		}
	}
	return report, nil
}

func newDistanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distance <lat1> <lng1> <lat2> <lng2>",
		Short: "Print great-circle distance and bearing between two coordinates",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v [4]float64
			for i, a := range args {
				f, err := strconv.ParseFloat(a, 64)
				if err != nil {
					return fmt.Errorf("argument %d: %w", i+1, err)
				}
				v[i] = f
			}
			d, err := geodesy.DistanceKm(v[0], v[1], v[2], v[3])
			if err != nil {
				return err
			}
			b, err := geodesy.BearingDeg(v[0], v[1], v[2], v[3])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%.3f km, bearing %.1f° (%s)\n", d, b, geodesy.Cardinal(b))
			return err
		},
	}
}

func loadTopologyFile(path string) (*domain.Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	var topo domain.Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("parse topology %s: %w", path, err)
	}
	if topo.Liaison.ID == uuid.Nil {
		topo.Liaison.ID = uuid.New()
	}
	// liaison_id у точках і сегментах можна не вказувати
	for i := range topo.Points {
		if topo.Points[i].LiaisonID == uuid.Nil {
			topo.Points[i].LiaisonID = topo.Liaison.ID
		}
	}
	for i := range topo.Segments {
		if topo.Segments[i].LiaisonID == uuid.Nil {
			topo.Segments[i].LiaisonID = topo.Liaison.ID
		}
		if topo.Segments[i].ID == uuid.Nil {
			topo.Segments[i].ID = uuid.New()
		}
	}
	if topo.Liaison.Status == "" {
		topo.Liaison.Status = domain.LiaisonStatusActive
	}
	return &topo, nil
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
