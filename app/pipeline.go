package app

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"buurtstat/adapters/extract"
	"buurtstat/domain/core"
	"buurtstat/domain/frame"
	"buurtstat/domain/model"
	dreport "buurtstat/domain/report"
	"buurtstat/internal/admin"
	"buurtstat/internal/config"
	"buurtstat/internal/diagnostics"
	apperrors "buurtstat/internal/errors"
	"buurtstat/internal/merge"
	"buurtstat/internal/mlm"
	"buurtstat/internal/recode"
	"buurtstat/internal/report"
	"buurtstat/internal/sample"
)

// ResultsStore persists run summaries beyond the local filesystem.
type ResultsStore interface {
	Save(ctx context.Context, s *dreport.Summary) error
}

// Pipeline runs the complete ETL and analysis sequence: extract,
// geographic preparation, merge, recode, model estimation, report.
type Pipeline struct {
	cfg   *config.Config
	store ResultsStore // optional
}

// NewPipeline creates a pipeline. store may be nil when no database is
// configured; results still land on disk.
func NewPipeline(cfg *config.Config, store ResultsStore) *Pipeline {
	return &Pipeline{cfg: cfg, store: store}
}

// Run executes all phases and returns the results summary.
func (p *Pipeline) Run(ctx context.Context) (*dreport.Summary, error) {
	runID := core.NewRunID()
	started := time.Now()
	log.Printf("[Pipeline] Run %s starting", runID)

	// Phase 1: extract
	surveyRaw, adminRaw, err := p.extract(ctx)
	if err != nil {
		return nil, err
	}
	validation := extract.ValidateRawData(surveyRaw, adminRaw)
	if !validation.Passed {
		log.Printf("[Pipeline] Raw data validation failed, continuing: %v", validation.Issues)
	}
	respondents := surveyRaw.NumRows()

	// Phase 2: geographic identifiers
	if err := merge.AddGeoIDs(surveyRaw); err != nil {
		return nil, err
	}
	levels, err := admin.SplitByLevel(adminRaw)
	if err != nil {
		return nil, err
	}

	// Phase 3: hierarchical merge
	merged, err := merge.Hierarchical(surveyRaw, levels)
	if err != nil {
		return nil, err
	}
	mergeChecks := merge.Validate(merged)
	missing := merge.AnalyzeMissingness(merged)
	fullMatch := 0
	for _, gp := range missing.GeoPatterns {
		if gp.HasBuurt && gp.HasWijk && gp.HasGemeente {
			fullMatch = gp.Count
		}
	}
	log.Printf("[Pipeline] Missingness: %d of %d rows matched at all levels", fullMatch, merged.NumRows())
	merge.CompareMatchedUnmatched(merged)

	// Phase 4: recode and standardize
	analysisSample, retention, err := p.transform(merged, adminRaw)
	if err != nil {
		return nil, err
	}
	log.Printf("[Pipeline] Analysis sample: %d of %d rows, %d clusters",
		retention.FinalN, retention.InitialN, retention.UniqueClusters)

	// Phase 5: models and diagnostics
	est := mlm.NewEstimator()
	est.KeepResiduals = true
	fitter := mlm.NewSequenceFitter(est).WithSparseThreshold(p.cfg.Analysis.SparseCovariateN)

	twoLevel := fitter.FitTwoLevel(analysisSample)
	icc, err := mlm.DecomposeVariance(twoLevel)
	if err != nil {
		return nil, err
	}
	p.runDiagnostics(twoLevel, analysisSample)
	sensitivity := diagnostics.NewSensitivityRunner(est).Run(ctx, merged)
	moderation, err := diagnostics.NewModerationTester(est).Test(merged)
	if err != nil {
		log.Printf("[Pipeline] Moderation test skipped: %v", err)
		moderation = nil
	}

	var fourLevel *model.Sequence
	var fourICC *model.ICCResult
	if merged.HasColumn("wijk_id") && merged.HasColumn("gemeente_id") {
		fourLevel = fitter.FitFourLevel(merged)
		if len(fourLevel.Fitted()) == 0 {
			log.Printf("[Pipeline] Four-level sequence produced no fits: %v", fourLevel.Failures())
			fourLevel = nil
		}
	} else {
		log.Printf("[Pipeline] Skipping four-level models: wijk_id or gemeente_id unavailable")
	}
	if fourLevel != nil {
		if icc4, err := mlm.DecomposeVariance(fourLevel); err != nil {
			log.Printf("[Pipeline] Four-level variance decomposition skipped: %v", err)
		} else {
			fourICC = &icc4
		}
	}

	// Phase 6: report
	summary, err := report.BuildSummary(report.Inputs{
		RunID:           runID,
		KeyPredictor:    mlm.KeyPredictor,
		Respondents:     respondents,
		ConfidenceLevel: p.cfg.Analysis.ConfidenceLevel,
		Sample:          analysisSample,
		TwoLevel:        twoLevel,
		FourLevel:       fourLevel,
		ICC:             icc,
		FourLevelICC:    fourICC,
		Sensitivity:     sensitivity,
		Moderation:      moderation,
		MergeChecks:     mergeChecks,
		RawData:         &validation,
	})
	if err != nil {
		return nil, err
	}
	if err := p.writeArtifacts(summary, twoLevel, fourLevel, analysisSample, merged); err != nil {
		return nil, err
	}

	if p.store != nil {
		if err := p.store.Save(ctx, summary); err != nil {
			log.Printf("[Pipeline] Failed to persist summary to database: %v", err)
		}
	}

	log.Printf("[Pipeline] Run %s complete in %s", runID, time.Since(started).Round(time.Millisecond))
	return summary, nil
}

func (p *Pipeline) extract(ctx context.Context) (survey, adminRaw *frame.Frame, err error) {
	survey, err = extract.NewSurveyReader(p.cfg.Paths.SurveyFile).Load()
	if err != nil {
		return nil, nil, err
	}

	if p.cfg.CBS.UseAPI {
		client := extract.NewCBSClient(p.cfg.CBS.BaseURL, p.cfg.CBS.TableID)
		adminRaw, err = client.DownloadAndSave(ctx, p.cfg.CBS.Year, p.cfg.Paths.AdminFile)
	} else {
		adminRaw, err = extract.NewAdminReader(p.cfg.Paths.AdminFile).Load()
	}
	if err != nil {
		return nil, nil, err
	}
	return survey, adminRaw, nil
}

// transform recodes merged data in place and carves out the analysis
// sample. The merged frame keeps all rows for sensitivity analyses.
func (p *Pipeline) transform(merged, adminRaw *frame.Frame) (*frame.Frame, sample.Retention, error) {
	if err := recode.NewRecoder(p.cfg.Survey.Year).Apply(merged); err != nil {
		return nil, sample.Retention{}, err
	}
	if err := recode.AddInequalityIndices(merged); err != nil {
		return nil, sample.Retention{}, err
	}
	if err := admin.BuildNameLookup(adminRaw).AddNames(merged); err != nil {
		return nil, sample.Retention{}, err
	}
	if err := recode.NewStandardizer().FitTransform(merged); err != nil {
		return nil, sample.Retention{}, err
	}

	builder := sample.NewBuilder(p.cfg.Survey.IncludeOccupation, p.cfg.Analysis.MinClusterSize)
	return builder.Build(merged)
}

func (p *Pipeline) runDiagnostics(seq *model.Sequence, data *frame.Frame) {
	vif, high := diagnostics.CalculateVIF(data, p.cfg.Analysis.VIFThreshold)
	log.Printf("[Pipeline] VIF screened %d variables, %d above threshold %.1f",
		len(vif), len(high), p.cfg.Analysis.VIFThreshold)
	for _, name := range high {
		log.Printf("[Pipeline]   high VIF: %s", name)
	}

	final := seq.Final()
	if final == nil {
		log.Printf("[Pipeline] No fitted model available for residual checks")
		return
	}
	res, err := diagnostics.CheckModel(final)
	if err != nil {
		log.Printf("[Pipeline] Residual diagnostics skipped: %v", err)
		return
	}
	log.Printf("[Pipeline] Residuals: mean=%.4f sd=%.2f skew=%.2f kurtosis=%.2f (n=%d, clusters=%d)",
		res.Residuals.Mean, res.Residuals.SD, res.Residuals.Skewness, res.Residuals.Kurtosis,
		res.NObs, res.NClusters)
}

func (p *Pipeline) writeArtifacts(summary *dreport.Summary, twoLevel, fourLevel *model.Sequence, analysisSample, merged *frame.Frame) error {
	table := report.BuildModelTable("Two-Level Random Intercept Models", twoLevel)
	if err := table.SaveHTML(p.cfg.Paths.RegressionFile); err != nil {
		return err
	}
	xlsxPath := filepath.Join(p.cfg.Paths.TablesDir, "regression_table.xlsx")
	if err := table.SaveXLSX(xlsxPath, "Models"); err != nil {
		return err
	}

	if fourLevel != nil {
		fourTable := report.BuildModelTable("Four-Level Random Intercept Models", fourLevel)
		fourPath := filepath.Join(p.cfg.Paths.TablesDir, "regression_table_four_level.html")
		if err := fourTable.SaveHTML(fourPath); err != nil {
			return err
		}
	}

	stats := report.StatsTable(report.SummaryStats(analysisSample))
	if err := stats.SaveHTML(filepath.Join(p.cfg.Paths.TablesDir, "summary_stats.html")); err != nil {
		return err
	}

	if err := report.WriteSummary(summary, p.cfg.Paths.ResultsFile); err != nil {
		return err
	}
	reportPath := filepath.Join(p.cfg.Paths.OutputDir, "analysis_report.html")
	if err := report.WriteReportHTML(summary, reportPath); err != nil {
		return err
	}

	if err := extract.WriteCSV(merged, p.cfg.Paths.ProcessedFile); err != nil {
		return apperrors.ReportError("failed to save processed data", err)
	}
	log.Printf("[Pipeline] Processed data saved to %s", p.cfg.Paths.ProcessedFile)
	return nil
}
