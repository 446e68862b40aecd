package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vinolens/vinolens-analyzer/entity"
	"github.com/vinolens/vinolens-analyzer/infra"
	"github.com/vinolens/vinolens-analyzer/infra/produce"
	"github.com/vinolens/vinolens-analyzer/repository"
	"github.com/vinolens/vinolens-analyzer/utils"
)

// Sommelier is the AI collaborator consumed by the pipeline. Satisfied by
// infra.SommelierClient.
type Sommelier interface {
	Vision(ctx context.Context, prompt string, imageURL string) (string, error)
	Generate(ctx context.Context, prompt string) (string, error)
}

// Pipeline runs the three analysis stages for one dispatched scan job and
// owns the job record from the moment the message is consumed until the
// terminal write. It coordinates with the trigger only through the job store.
type Pipeline struct {
	Repository *repository.Repository
	Sommelier  Sommelier
	Logger     *infra.LoggerClient
}

type enrichmentResult struct {
	Score          int            `json:"score"`
	Summary        string         `json:"summary"`
	Pairings       []string       `json:"pairings"`
	PriceEstimate  string         `json:"price_estimate"`
	ValueRatio     string         `json:"value_ratio"`
	FlavorProfile  map[string]int `json:"flavor_profile"`
	ReviewSnippets []string       `json:"review_snippets"`
}

// Run executes extraction, enrichment fan-out and persistence. Whatever
// happens, the job ends in a terminal state: any failure that escapes the
// stage-local handling is caught here and written as failed. The returned
// error is non-nil only when even the terminal write could not be performed.
func (p *Pipeline) Run(ctx context.Context, msg produce.ScanJobMessage) (runErr error) {
	defer func() {
		if r := recover(); r != nil {
			p.Logger.ErrorWithContextf(ctx, fmt.Errorf("%v", r), "[Analyzer] Pipeline panicked (request_id=%s, job_id=%s)", msg.RequestID, msg.JobID)
			runErr = p.markFailed(ctx, msg, fmt.Sprintf("pipeline panic: %v", r))
		}
	}()

	// Stage 1: extraction
	raw, err := p.Sommelier.Vision(ctx, extractionPrompt, msg.ImageURL)
	if err != nil {
		p.Logger.ErrorWithContextf(ctx, err, "[Analyzer] Vision extraction failed (request_id=%s, job_id=%s)", msg.RequestID, msg.JobID)
		return p.markFailed(ctx, msg, "vision extraction failed: "+err.Error())
	}

	seeds := decodeExtraction(raw, msg.ImageURL)
	p.Logger.InfoWithContextf(ctx, "[Analyzer] Extracted %d items (request_id=%s, job_id=%s)", len(seeds), msg.RequestID, msg.JobID)

	if err := p.Repository.ScanRepo.Touch(ctx, msg.JobID); err != nil {
		// Progress writes are best-effort; the terminal write is what counts.
		p.Logger.WarningWithContextf(ctx, "[Analyzer] Progress write failed (request_id=%s, job_id=%s): %v", msg.RequestID, msg.JobID, err)
	}

	// Stage 2: enrichment fan-out. One task per item; a failing task falls
	// back to the item's identification fields and never touches siblings.
	items := make([]entity.Item, len(seeds))
	var wg sync.WaitGroup
	for i := range seeds {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					items[i] = fallbackItem(seeds[i], fmt.Sprintf("enrichment panic: %v", r))
				}
			}()
			items[i] = p.enrichItem(ctx, msg, seeds[i])
		}(i)
	}
	wg.Wait()

	// Stage 3: aggregation and persistence, in extraction order.
	return p.persistCompleted(ctx, msg, items)
}

// decodeExtraction turns raw model output into item seeds. Layered and
// defensive: fence stripping, array parse, single-object fallback, empty
// fallback. Zero items is a valid outcome, not an error.
func decodeExtraction(raw string, imageURL string) []entity.Item {
	elems := utils.DecodeObjectArray(raw)
	seeds := make([]entity.Item, 0, len(elems))
	for _, el := range elems {
		var seed entity.Item
		if err := json.Unmarshal(el, &seed); err != nil {
			continue
		}
		seed.ImageURL = imageURL
		seeds = append(seeds, seed)
	}
	return seeds
}

// enrichItem runs one enrichment call and folds the result into the item.
// Every failure mode collapses to a fallback item carrying an error
// annotation; nothing propagates out of the task.
func (p *Pipeline) enrichItem(ctx context.Context, msg produce.ScanJobMessage, seed entity.Item) entity.Item {
	raw, err := p.Sommelier.Generate(ctx, enrichmentPrompt(seed))
	if err != nil {
		p.Logger.WarningWithContextf(ctx, "[Analyzer] Enrichment call failed for %q (request_id=%s, job_id=%s): %v", seed.DisplayName(), msg.RequestID, msg.JobID, err)
		return fallbackItem(seed, "enrichment failed: "+err.Error())
	}

	obj, ok := utils.DecodeObject(raw)
	if !ok {
		p.Logger.WarningWithContextf(ctx, "[Analyzer] Enrichment response unparseable for %q (request_id=%s, job_id=%s)", seed.DisplayName(), msg.RequestID, msg.JobID)
		return fallbackItem(seed, "enrichment response was not valid JSON")
	}

	var enriched enrichmentResult
	if err := json.Unmarshal(obj, &enriched); err != nil {
		return fallbackItem(seed, "enrichment response had unexpected shape")
	}

	item := seed
	item.Score = clampScore(enriched.Score)
	item.Summary = enriched.Summary
	item.Pairings = enriched.Pairings
	item.PriceEstimate = enriched.PriceEstimate
	item.ValueRatio = enriched.ValueRatio
	item.FlavorProfile = enriched.FlavorProfile
	item.ReviewSnippets = enriched.ReviewSnippets
	return item
}

// fallbackItem keeps the identification fields and marks the enrichment
// failure on the item itself.
func fallbackItem(seed entity.Item, reason string) entity.Item {
	item := seed
	item.Score = 0
	item.Error = reason
	return item
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// persistCompleted writes the detail record and the terminal completed
// update. An oversize detail degrades to a truncated summary rather than
// leaving the job without a terminal write.
func (p *Pipeline) persistCompleted(ctx context.Context, msg produce.ScanJobMessage, items []entity.Item) error {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.DisplayName()
	}

	summary := &entity.ResultSummary{
		ItemCount: len(items),
		ItemNames: names,
		ImageURL:  msg.ImageURL,
	}

	detailErr := p.Repository.ScanRepo.PutDetail(ctx, &entity.ScanDetail{
		JobID: msg.JobID,
		Items: items,
	})
	if detailErr != nil {
		p.Logger.WarningWithContextf(ctx, "[Analyzer] Detail write failed, keeping minimal summary (request_id=%s, job_id=%s): %v", msg.RequestID, msg.JobID, detailErr)
		summary.Truncated = true
		summary.Notice = "full results exceeded storage limits; only item names retained"
	}

	now := time.Now().UTC()
	status := entity.StatusCompleted
	job, err := p.Repository.ScanRepo.Update(ctx, msg.JobID, entity.ScanJobPatch{
		Status:        &status,
		CompletedAt:   &now,
		ResultSummary: summary,
	})
	if err != nil {
		if errors.Is(err, repository.ErrTerminalState) || errors.Is(err, repository.ErrJobNotFound) {
			// Redelivered message for an already-settled or expired job.
			p.Logger.WarningWithContextf(ctx, "[Analyzer] Dropping completed write (request_id=%s, job_id=%s): %v", msg.RequestID, msg.JobID, err)
			return nil
		}
		p.Logger.ErrorWithContextf(ctx, err, "[Analyzer] Terminal completed write failed (request_id=%s, job_id=%s)", msg.RequestID, msg.JobID)
		return err
	}

	p.Logger.InfoWithContextf(ctx, "[Analyzer] Job completed with %d items (request_id=%s, job_id=%s)", len(items), msg.RequestID, msg.JobID)
	p.archive(ctx, msg, job, items)
	return nil
}

// markFailed performs the terminal failed write.
func (p *Pipeline) markFailed(ctx context.Context, msg produce.ScanJobMessage, reason string) error {
	now := time.Now().UTC()
	status := entity.StatusFailed
	job, err := p.Repository.ScanRepo.Update(ctx, msg.JobID, entity.ScanJobPatch{
		Status:      &status,
		CompletedAt: &now,
		Error:       &reason,
	})
	if err != nil {
		if errors.Is(err, repository.ErrTerminalState) || errors.Is(err, repository.ErrJobNotFound) {
			p.Logger.WarningWithContextf(ctx, "[Analyzer] Dropping failed write (request_id=%s, job_id=%s): %v", msg.RequestID, msg.JobID, err)
			return nil
		}
		p.Logger.ErrorWithContextf(ctx, err, "[Analyzer] Terminal failed write failed (request_id=%s, job_id=%s)", msg.RequestID, msg.JobID)
		return err
	}
	p.archive(ctx, msg, job, nil)
	return nil
}

// archive copies the terminal job to Postgres. Best-effort: the archive is
// a convenience record, never a coordination channel.
func (p *Pipeline) archive(ctx context.Context, msg produce.ScanJobMessage, job *entity.ScanJob, items []entity.Item) {
	if p.Repository.ArchiveRepo == nil {
		return
	}

	itemsJSON, err := json.Marshal(items)
	if err != nil {
		itemsJSON = []byte("[]")
	}

	completedAt := time.Now().UTC()
	if job.CompletedAt != nil {
		completedAt = *job.CompletedAt
	}

	archive := &entity.ScanArchive{
		JobID:       job.JobID,
		Status:      string(job.Status),
		RequestID:   job.RequestID,
		ImageURL:    job.ImageURL,
		ItemCount:   len(items),
		Items:       itemsJSON,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		CompletedAt: completedAt,
	}
	if err := p.Repository.ArchiveRepo.Create(archive); err != nil {
		p.Logger.WarningWithContextf(ctx, "[Analyzer] Archive write failed (request_id=%s, job_id=%s): %v", msg.RequestID, msg.JobID, err)
	}
}
