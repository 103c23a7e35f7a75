package criteria

import (
	"context"
	"fmt"

	"github.com/sitegauge/sitegauge/content"
	"github.com/sitegauge/sitegauge/llm"
	"github.com/sitegauge/sitegauge/models"
)

// judgmentResult converts a judge verdict into a CriterionResult. The
// judge's strengths/weaknesses become the passed/failed check lists so AI
// and heuristic criteria render identically downstream.
func judgmentResult(criterion, description string, v *llm.Judgment) models.CriterionResult {
	passed := v.Strengths
	if passed == nil {
		passed = []string{}
	}
	failed := v.Weaknesses
	if failed == nil {
		failed = []string{}
	}
	return models.CriterionResult{
		Criterion: criterion,
		Score:     v.Score,
		Status:    models.StatusOK,
		Evidence: models.Evidence{
			Description: description,
			Reasoning:   v.Reasoning,
		},
		Passes: models.Passes{Passed: passed, Failed: failed},
	}
}

// evaluateMessaging judges whether the value proposition is obvious from
// the above-the-fold copy alone.
func evaluateMessaging(judge *llm.Judge) EvaluateFunc {
	const rubric = `Messaging clarity. Within the first screen of copy, can a
first-time visitor tell what is offered, who it is for, and why it matters?
Score 8-10 only when the value proposition is specific and immediate; vague
slogans or feature lists without a promise score 4 or below.`

	return func(ctx context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
		hero := content.HeroText(site.HTML)
		if hero == "" {
			return models.CriterionResult{}, models.NewScoreError(
				models.ErrCodeCriterionFailure, "no visible hero copy to judge", nil)
		}
		v, err := judge.Score(ctx, rubric, hero)
		if err != nil {
			return models.CriterionResult{}, err
		}
		return judgmentResult(models.CriterionMessaging,
			"AI judgment of above-the-fold value proposition", v), nil
	}
}

// evaluateContentQuality judges the depth and audience fit of the page's
// main content, prepared via readability + markdown conversion.
func evaluateContentQuality(judge *llm.Judge, prep *content.Preparer, maxTokens int) EvaluateFunc {
	const rubric = `Content quality. Judge the depth, specificity and audience
fit of the page's main content. Reward concrete claims, evidence and useful
detail; penalize thin, generic or keyword-stuffed copy.`

	return func(ctx context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
		md, err := prep.Markdown(site.HTML, site.WebsiteURL, maxTokens)
		if err != nil {
			return models.CriterionResult{}, models.NewScoreError(
				models.ErrCodeCriterionFailure, "content preparation failed", err)
		}
		v, err := judge.Score(ctx, rubric, md)
		if err != nil {
			return models.CriterionResult{}, err
		}
		return judgmentResult(models.CriterionContent,
			"AI judgment of main content quality", v), nil
	}
}

// evaluateVisualHierarchy judges layout structure from the DOM outline —
// heading nesting and landmark regions — plus the screenshot reference
// when one was captured.
func evaluateVisualHierarchy(judge *llm.Judge) EvaluateFunc {
	const rubric = `Visual hierarchy. From the page's structural outline
(landmark regions and heading tree), judge whether the layout guides the
eye: one clear top-level message, sensible section nesting, no wall of
same-level headings, navigation and footer separated from content.`

	return func(ctx context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
		outline := content.Outline(site.HTML)
		if outline == "" {
			return models.CriterionResult{}, models.NewScoreError(
				models.ErrCodeCriterionFailure, "page has no structural outline to judge", nil)
		}
		input := outline
		if site.ScreenshotRef != nil {
			input = fmt.Sprintf("%s\n\n(full-page screenshot captured at %s)", outline, *site.ScreenshotRef)
		}
		v, err := judge.Score(ctx, rubric, input)
		if err != nil {
			return models.CriterionResult{}, err
		}
		return judgmentResult(models.CriterionVisual,
			"AI judgment of structural visual hierarchy", v), nil
	}
}
