package report

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"buurtstat/domain/core"
	"buurtstat/domain/frame"
	"buurtstat/domain/model"
	"buurtstat/domain/report"
	apperrors "buurtstat/internal/errors"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"gonum.org/v1/gonum/stat/distuv"
)

// Inputs collects everything the summary artifact is assembled from.
type Inputs struct {
	RunID           core.RunID
	KeyPredictor    string
	Respondents     int
	ConfidenceLevel float64 // CI level for the key effect; 0 means 0.95

	Sample       *frame.Frame
	TwoLevel     *model.Sequence
	FourLevel    *model.Sequence
	ICC          model.ICCResult
	FourLevelICC *model.ICCResult
	Sensitivity  []report.SensitivityRow
	Moderation   *report.ModerationResult
	MergeChecks  []report.MergeCheck
	RawData      *report.RawValidation
}

// BuildSummary assembles the validated results artifact from a
// completed run.
func BuildSummary(in Inputs) (*report.Summary, error) {
	log.Printf("[Report] Generating analysis report...")

	s := &report.Summary{
		SchemaVersion: report.SchemaVersion,
		RunID:         in.RunID,
		GeneratedAt:   time.Now().UTC(),
		ICC:           in.ICC,
		FourLevelICC:  in.FourLevelICC,
		Sensitivity:   in.Sensitivity,
		Moderation:    in.Moderation,
		Validation:    in.MergeChecks,
		RawData:       in.RawData,
	}

	s.Sample = report.SampleCounts{
		Respondents: in.Respondents,
		AnalysisN:   in.Sample.NumRows(),
		Buurten:     uniqueCount(in.Sample, "buurt_id"),
		Wijken:      uniqueCount(in.Sample, "wijk_id"),
		Gemeenten:   uniqueCount(in.Sample, "gemeente_id"),
	}

	level := in.ConfidenceLevel
	if level <= 0 || level >= 1 {
		level = 0.95
	}
	z := criticalValue(level)
	s.KeyEffect = trackKeyEffect(in.TwoLevel, in.KeyPredictor, level, z)
	if in.FourLevel != nil {
		track := trackKeyEffect(in.FourLevel, in.KeyPredictor, level, z)
		s.FourLevel = &track
	}

	for _, seq := range []*model.Sequence{in.TwoLevel, in.FourLevel} {
		if seq == nil {
			continue
		}
		for _, m := range seq.Fitted() {
			s.Comparison = append(s.Comparison, report.ModelFitRow{
				Model:     seq.Name + "/" + m.Name,
				N:         m.NObs,
				NClusters: m.NClusters,
				AIC:       m.AIC,
				BIC:       m.BIC,
				Converged: m.Converged,
			})
		}
	}

	if err := s.Validate(); err != nil {
		return nil, apperrors.ReportError("results summary failed validation", err)
	}

	log.Printf("[Report] Observations: %d, clusters: %d", s.Sample.AnalysisN, s.Sample.Buurten)
	log.Printf("[Report] ICC: %.4f (%.1f%% between)", s.ICC.ICC, s.ICC.PctBetween)
	if final := in.TwoLevel.Final(); final != nil {
		if c, ok := final.Coefficient(in.KeyPredictor); ok {
			log.Printf("[Report] Key predictor: %.3f (SE=%.3f), %.0f%% CI [%.3f, %.3f]",
				c.Estimate, c.SE, level*100, s.KeyEffect.FinalCI[0], s.KeyEffect.FinalCI[1])
		}
	}
	return s, nil
}

// criticalValue is the two-sided standard normal critical value for a
// confidence level, e.g. 1.96 at 0.95.
func criticalValue(level float64) float64 {
	return distuv.Normal{Mu: 0, Sigma: 1}.Quantile(0.5 + level/2)
}

// trackKeyEffect follows the key predictor across a sequence; the
// coefficient labels carry the model names.
func trackKeyEffect(seq *model.Sequence, predictor string, level, z float64) report.KeyEffectTrack {
	track := report.KeyEffectTrack{Predictor: predictor, CILevel: level}
	for _, m := range seq.Fitted() {
		c, ok := m.Coefficient(predictor)
		if !ok {
			continue
		}
		track.Models = append(track.Models, model.Coefficient{
			Label:    m.Name,
			Estimate: c.Estimate,
			SE:       c.SE,
		})
		track.FinalCI = [2]float64{c.Estimate - z*c.SE, c.Estimate + z*c.SE}
	}
	return track
}

func uniqueCount(data *frame.Frame, col string) int {
	vals, missing := data.Strings(col)
	seen := make(map[string]bool)
	for i, v := range vals {
		if missing != nil && missing[i] {
			continue
		}
		seen[v] = true
	}
	return len(seen)
}

// WriteSummary serializes the summary to its JSON artifact path.
func WriteSummary(s *report.Summary, path string) error {
	data, err := s.Marshal()
	if err != nil {
		return apperrors.ReportError("failed to serialize results summary", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.ReportError("failed to create output directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.ReportError("failed to write results summary", err)
	}
	log.Printf("[Report] Saved results summary to %s", path)
	return nil
}

// RenderMarkdown produces the human-readable analysis report.
func RenderMarkdown(s *report.Summary) string {
	var b strings.Builder
	b.WriteString("# Neighborhood Inequality and Redistribution Preferences\n\n")
	fmt.Fprintf(&b, "Run `%s`, generated %s.\n\n", s.RunID, s.GeneratedAt.Format(time.RFC3339))

	b.WriteString("## Sample\n\n")
	fmt.Fprintf(&b, "- Respondents: %d\n", s.Sample.Respondents)
	fmt.Fprintf(&b, "- Analysis sample: %d\n", s.Sample.AnalysisN)
	fmt.Fprintf(&b, "- Neighborhoods (buurten): %d\n", s.Sample.Buurten)
	fmt.Fprintf(&b, "- Districts (wijken): %d\n", s.Sample.Wijken)
	fmt.Fprintf(&b, "- Municipalities (gemeenten): %d\n\n", s.Sample.Gemeenten)

	b.WriteString("## Variance decomposition\n\n")
	fmt.Fprintf(&b, "ICC = %.4f: %.1f%% of outcome variance lies between neighborhoods, %.1f%% within.\n\n",
		s.ICC.ICC, s.ICC.PctBetween, s.ICC.PctWithin)
	if s.FourLevelICC != nil {
		fmt.Fprintf(&b, "Extended sequence ICC = %.4f (%.1f%% between neighborhoods on the shared four-level sample).\n\n",
			s.FourLevelICC.ICC, s.FourLevelICC.PctBetween)
	}

	b.WriteString("## Key predictor across models\n\n")
	fmt.Fprintf(&b, "Predictor: `%s`\n\n", s.KeyEffect.Predictor)
	b.WriteString("| Model | Coefficient | SE |\n|---|---|---|\n")
	for _, c := range s.KeyEffect.Models {
		fmt.Fprintf(&b, "| %s | %.3f%s | %.3f |\n", c.Label, c.Estimate, c.Stars(), c.SE)
	}
	ciPct := s.KeyEffect.CILevel * 100
	if ciPct == 0 {
		ciPct = 95
	}
	fmt.Fprintf(&b, "\nFinal %.0f%% CI: [%.3f, %.3f]\n\n", ciPct, s.KeyEffect.FinalCI[0], s.KeyEffect.FinalCI[1])

	if len(s.Sensitivity) > 0 {
		b.WriteString("## Sensitivity\n\n")
		b.WriteString("| Specification | N | Coefficient | SE | Significant |\n|---|---|---|---|---|\n")
		for _, row := range s.Sensitivity {
			if row.Skipped {
				fmt.Fprintf(&b, "| %s | - | skipped: %s | - | - |\n", row.Specification, row.SkipReason)
				continue
			}
			fmt.Fprintf(&b, "| %s | %d | %.3f | %.3f | %v |\n",
				row.Specification, row.N, row.Coefficient, row.SE, row.Significant)
		}
		b.WriteString("\n")
	}

	if s.Moderation != nil {
		b.WriteString("## Wealth moderation\n\n")
		fmt.Fprintf(&b, "Interaction %s x %s: %.3f (SE=%.3f), verdict: %s.\n\n",
			s.KeyEffect.Predictor, s.Moderation.Moderator,
			s.Moderation.Interaction.Estimate, s.Moderation.Interaction.SE,
			s.Moderation.Verdict)
	}

	if s.RawData != nil {
		b.WriteString("## Raw data checks\n\n")
		fmt.Fprintf(&b, "Survey rows: %d (%d with geocode). Admin regions: %d buurt, %d wijk, %d gemeente.\n\n",
			s.RawData.SurveyN, s.RawData.SurveyCompleteGeo,
			s.RawData.AdminBuurt, s.RawData.AdminWijk, s.RawData.AdminGemeente)
		if s.RawData.Passed {
			b.WriteString("All raw data checks passed.\n\n")
		} else {
			for _, issue := range s.RawData.Issues {
				fmt.Fprintf(&b, "- %s\n", issue)
			}
			b.WriteString("\n")
		}
	}

	if len(s.Validation) > 0 {
		b.WriteString("## Merge validation\n\n")
		b.WriteString("| Level | Matched | Missing | % | Status |\n|---|---|---|---|---|\n")
		for _, mc := range s.Validation {
			fmt.Fprintf(&b, "| %s | %d | %d | %.1f | %s |\n",
				mc.Level, mc.NMatched, mc.NMissing, mc.PctMatched, mc.Status)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// WriteReportHTML renders the markdown report to an HTML file.
func WriteReportHTML(s *report.Summary, path string) error {
	md := RenderMarkdown(s)

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	doc := p.Parse([]byte(md))
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.CompletePage})
	out := markdown.Render(doc, renderer)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.ReportError("failed to create output directory", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return apperrors.ReportError("failed to write analysis report", err)
	}
	log.Printf("[Report] Saved analysis report to %s", path)
	return nil
}
