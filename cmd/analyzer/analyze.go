package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"intelligent-resource-analyzer/pkg/analyzer"
	"intelligent-resource-analyzer/pkg/logger"
)

func runAnalyze(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	source := newFileSource(snapshotsPath, retention(cfg))
	if err := source.Reload(); err != nil {
		return err
	}
	if exportPath != "" {
		if err := source.Export(exportPath); err != nil {
			return err
		}
		logger.Infof("Exported %d services to %s", len(source.Services()), exportPath)
	}

	at, err := resolveAnalysisTime(source)
	if err != nil {
		return err
	}
	fixed := func() time.Time { return at }

	svc, err := analyzer.NewService(cfg, source, append(serviceOptions(log), analyzer.WithClock(fixed))...)
	if err != nil {
		return err
	}

	var reports []*analyzer.Report
	if service != "" {
		report, err := svc.Analyze(cmd.Context(), service)
		if err != nil {
			return err
		}
		reports = append(reports, report)
	} else {
		reports, err = svc.AnalyzeAll(cmd.Context())
		if err != nil {
			logger.Warnf("Some services could not be analyzed: %v", err)
		}
	}

	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "text":
		for _, r := range reports {
			printSummary(os.Stdout, r)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}

func resolveAnalysisTime(source *fileSource) (time.Time, error) {
	if analysisTime != "" {
		at, err := time.Parse(time.RFC3339, analysisTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --at: %w", err)
		}
		return at, nil
	}
	if latest, ok := source.newest(); ok {
		return latest, nil
	}
	return time.Now(), nil
}

func printSummary(w io.Writer, r *analyzer.Report) {
	a := r.Analysis
	fmt.Fprintln(w, "===================================================")
	fmt.Fprintf(w, "  Service: %s (%s)\n", r.Service, r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintln(w, "===================================================")
	fmt.Fprintf(w, "  Samples:         %d (quality %.0f/100)\n", a.SampleCount, r.DataQuality.Score)
	fmt.Fprintf(w, "  CPU     - Current: %6s | Recommended: %6s | Limit: %6s\n",
		a.Current.CPURequest, a.Recommended.CPURequest, a.Recommended.CPULimit)
	fmt.Fprintf(w, "  Memory  - Current: %6s | Recommended: %6s | Limit: %6s\n",
		a.Current.MemoryRequest, a.Recommended.MemoryRequest, a.Recommended.MemoryLimit)
	xms, xmx := a.Heap.Flags()
	fmt.Fprintf(w, "  Heap:            %s %s\n", xms, xmx)
	fmt.Fprintf(w, "  Savings:         $%.2f/month (confidence %.2f)\n", a.EstimatedMonthlySavings, a.ConfidenceScore)
	fmt.Fprintf(w, "  Pod cost:        %s\n", r.PodCost.FormatCost())
	fmt.Fprintln(w, "---------------------------------------------------")

	fmt.Fprintf(w, "  Anomalies:       %d\n", len(r.Anomalies))
	for _, an := range r.Anomalies {
		fmt.Fprintf(w, "    [%s] %s\n", an.Severity, an.Description)
	}
	fmt.Fprintf(w, "  Workload:        %s -> %s\n", r.Profile.Pattern, r.Profile.RecommendedStrategy)
	fmt.Fprintf(w, "  Pattern:         %s\n", r.Pattern.Description)
	fmt.Fprintf(w, "  Scaling:         %s (urgency %s)\n", r.Scaling.Summary.Primary, r.Scaling.Summary.Urgency)
	for _, finding := range r.Scaling.Summary.KeyFindings {
		fmt.Fprintf(w, "    - %s\n", finding)
	}
	m := r.Manifests
	var minReplicas int32
	if m.HPA.MinReplicas != nil {
		minReplicas = *m.HPA.MinReplicas
	}
	fmt.Fprintf(w, "  HPA:             %d-%d replicas\n", minReplicas, m.HPA.MaxReplicas)
	fmt.Fprintf(w, "  VPA bounds:      cpu %s-%s | memory %s-%s\n",
		m.VPAMinAllowed.Cpu(), m.VPAMaxAllowed.Cpu(), m.VPAMinAllowed.Memory(), m.VPAMaxAllowed.Memory())
	fmt.Fprintf(w, "  Cost forecast:   $%.2f over %d days (%s)\n",
		r.CostForecast.PredictedCost, r.CostForecast.DaysAhead, r.CostForecast.Trend)
	if r.CostForecast.PeakHoursAhead > 0 {
		fmt.Fprintf(w, "    peak $%.2f/hour in %dh\n", r.CostForecast.PeakHourlyCost, r.CostForecast.PeakHoursAhead)
	}
	if r.CostForecast.Warning != "" {
		fmt.Fprintf(w, "    ! %s\n", r.CostForecast.Warning)
	}
	fmt.Fprintln(w)
}
