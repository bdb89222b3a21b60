package service

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/lecturelens/internal/models"
	"github.com/raphaelgruber/lecturelens/internal/prompts"
	"github.com/raphaelgruber/lecturelens/internal/stage"
	"github.com/raphaelgruber/lecturelens/internal/validate"
)

// textAnalysis holds one outcome per generated field.
type textAnalysis struct {
	summary  stage.Outcome[string]
	chapters stage.Outcome[[]models.Chapter]
	qa       stage.Outcome[[]models.QAItem]
}

// apply copies successful fields into r and records a warning for each
// field that fell back to its empty value.
func (a textAnalysis) apply(r *models.AnalysisResult) {
	if a.summary.OK() {
		r.Summary = a.summary.Value
	} else {
		r.Warnings = append(r.Warnings, "summary: "+a.summary.Failure.Message)
	}

	if a.chapters.OK() {
		r.Chapters = a.chapters.Value
		if !chaptersOrdered(r.Chapters) {
			r.Warnings = append(r.Warnings, "chapters: timestamps are not in chronological order")
		}
	} else {
		r.Chapters = []models.Chapter{}
		r.Warnings = append(r.Warnings, "chapters: "+a.chapters.Failure.Message)
	}

	if a.qa.OK() {
		r.QA = a.qa.Value
	} else {
		r.QA = []models.QAItem{}
		r.Warnings = append(r.Warnings, "qa: "+a.qa.Failure.Message)
	}
}

// analyzeText runs the summary, chapters and Q&A generations. It never
// fails; each field carries its own outcome.
func (p *Pipeline) analyzeText(ctx context.Context, taskID, fullText string) textAnalysis {
	var out textAnalysis
	var g errgroup.Group
	g.SetLimit(p.opts.TextConcurrency)

	g.Go(func() error {
		out.summary = generateField(ctx, p, taskID, prompts.Summary, leading(fullText, p.opts.SummaryChars), validate.Summary)
		return nil
	})
	g.Go(func() error {
		out.chapters = generateField(ctx, p, taskID, prompts.Chapters, leading(fullText, p.opts.ChaptersChars), validate.Chapters)
		return nil
	})
	g.Go(func() error {
		out.qa = generateField(ctx, p, taskID, prompts.QA, leading(fullText, p.opts.QAChars), validate.QA)
		return nil
	})
	_ = g.Wait()

	return out
}

// generateField renders one prompt, asks for structured output and checks
// its shape.
func generateField[T any](ctx context.Context, p *Pipeline, taskID string, name prompts.Name, transcript string,
	check func(map[string]any) (T, error)) stage.Outcome[T] {
	return stage.Run(ctx, p.runner, stage.Call{
		Stage:   models.StageAnalyzingText,
		Name:    string(name),
		TaskID:  taskID,
		Timeout: p.opts.GenerateTimeout,
	}, func(ctx context.Context) (T, error) {
		var zero T
		prompt, err := p.prompts.Render(name, prompts.Data{Transcript: transcript})
		if err != nil {
			return zero, err
		}
		raw, err := p.generator.GenerateJSON(ctx, prompt)
		if err != nil {
			return zero, err
		}
		return check(raw)
	})
}

// chaptersOrdered reports whether chapter timestamps never go backwards.
// Unparseable timestamps are skipped.
func chaptersOrdered(chapters []models.Chapter) bool {
	last := -1
	for _, c := range chapters {
		secs, ok := parseTimestamp(c.Timestamp)
		if !ok {
			continue
		}
		if secs < last {
			return false
		}
		last = secs
	}
	return true
}

// parseTimestamp accepts mm:ss and hh:mm:ss.
func parseTimestamp(ts string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}
