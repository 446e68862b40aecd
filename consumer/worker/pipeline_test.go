package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinolens/vinolens-analyzer/config"
	"github.com/vinolens/vinolens-analyzer/entity"
	"github.com/vinolens/vinolens-analyzer/infra"
	"github.com/vinolens/vinolens-analyzer/infra/produce"
	"github.com/vinolens/vinolens-analyzer/repository"
)

type fakeSommelier struct {
	vision   func(ctx context.Context, prompt, imageURL string) (string, error)
	generate func(ctx context.Context, prompt string) (string, error)
}

func (f *fakeSommelier) Vision(ctx context.Context, prompt, imageURL string) (string, error) {
	return f.vision(ctx, prompt, imageURL)
}

func (f *fakeSommelier) Generate(ctx context.Context, prompt string) (string, error) {
	if f.generate == nil {
		return "{}", nil
	}
	return f.generate(ctx, prompt)
}

func newTestPipeline(t *testing.T, maxEntryBytes int, sommelier Sommelier) (*Pipeline, *repository.ScanRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	cfg := &config.EnvConfig{}
	cfg.Redis.RedisHost = host
	cfg.Redis.RedisPort = port

	scanRepo := repository.NewScanRepository(infra.InitRedisClient(cfg), time.Hour, maxEntryBytes)
	repo := &repository.Repository{ScanRepo: scanRepo}

	return &Pipeline{
		Repository: repo,
		Sommelier:  sommelier,
		Logger:     infra.InitLoggerClient(cfg),
	}, scanRepo, mr
}

func dispatchMessage(t *testing.T, repo *repository.ScanRepository, jobID string) produce.ScanJobMessage {
	t.Helper()
	ctx := context.Background()

	job := &entity.ScanJob{
		JobID:     jobID,
		Status:    entity.StatusUploading,
		RequestID: "req-" + jobID,
		ImageURL:  "http://blob/scans/" + jobID + ".jpg",
	}
	require.NoError(t, repo.Create(ctx, job))

	processing := entity.StatusProcessing
	_, err := repo.Update(ctx, jobID, entity.ScanJobPatch{Status: &processing})
	require.NoError(t, err)

	return produce.ScanJobMessage{JobID: jobID, ImageURL: job.ImageURL, RequestID: job.RequestID}
}

func enrichmentJSON(summary string, score int) string {
	return fmt.Sprintf(`{"score": %d, "summary": %q, "pairings": ["steak"], "price_estimate": "$20-30", "value_ratio": "good", "flavor_profile": {"fruit": 7}, "review_snippets": ["solid bottle"]}`, score, summary)
}

func TestPipelineZeroItemsCompletes(t *testing.T) {
	sommelier := &fakeSommelier{
		vision: func(context.Context, string, string) (string, error) { return "[]", nil },
	}
	p, repo, _ := newTestPipeline(t, 65536, sommelier)
	msg := dispatchMessage(t, repo, "j1")

	require.NoError(t, p.Run(context.Background(), msg))

	job, err := repo.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.ResultSummary)
	assert.Equal(t, 0, job.ResultSummary.ItemCount)

	detail, err := repo.GetDetail(context.Background(), "j1")
	require.NoError(t, err)
	assert.Empty(t, detail.Items)
}

func TestPipelineUnparseableExtractionCompletesEmpty(t *testing.T) {
	sommelier := &fakeSommelier{
		vision: func(context.Context, string, string) (string, error) {
			return "I see a lovely dinner table but cannot produce JSON", nil
		},
	}
	p, repo, _ := newTestPipeline(t, 65536, sommelier)
	msg := dispatchMessage(t, repo, "j1")

	require.NoError(t, p.Run(context.Background(), msg))

	job, err := repo.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, job.Status)
	assert.Equal(t, 0, job.ResultSummary.ItemCount)
}

func TestPipelineFencedExtractionIsDecoded(t *testing.T) {
	sommelier := &fakeSommelier{
		vision: func(context.Context, string, string) (string, error) {
			return "```json\n[{\"name\": \"Barolo\", \"vintage\": \"2018\"}]\n```", nil
		},
		generate: func(_ context.Context, prompt string) (string, error) {
			return enrichmentJSON("earthy and structured", 93), nil
		},
	}
	p, repo, _ := newTestPipeline(t, 65536, sommelier)
	msg := dispatchMessage(t, repo, "j1")

	require.NoError(t, p.Run(context.Background(), msg))

	detail, err := repo.GetDetail(context.Background(), "j1")
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, "Barolo", detail.Items[0].Name)
	assert.Equal(t, "2018", detail.Items[0].Vintage)
	assert.Equal(t, 93, detail.Items[0].Score)
	assert.Empty(t, detail.Items[0].Error)
}

func TestPipelineSingleObjectExtractionBecomesOneItem(t *testing.T) {
	sommelier := &fakeSommelier{
		vision: func(context.Context, string, string) (string, error) {
			return `{"name": "Rioja Reserva"}`, nil
		},
		generate: func(context.Context, string) (string, error) {
			return enrichmentJSON("ripe cherry", 88), nil
		},
	}
	p, repo, _ := newTestPipeline(t, 65536, sommelier)
	msg := dispatchMessage(t, repo, "j1")

	require.NoError(t, p.Run(context.Background(), msg))

	detail, err := repo.GetDetail(context.Background(), "j1")
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, "Rioja Reserva", detail.Items[0].Name)
}

func TestPipelineOneFailingEnrichmentDoesNotAbortSiblings(t *testing.T) {
	extraction := `[{"name": "Wine A"}, {"name": "Bad Wine"}, {"name": "Wine C"}]`
	sommelier := &fakeSommelier{
		vision: func(context.Context, string, string) (string, error) { return extraction, nil },
		generate: func(_ context.Context, prompt string) (string, error) {
			if strings.Contains(prompt, "Bad Wine") {
				return "", errors.New("upstream model unavailable")
			}
			// Slow down the first task so completion order differs from
			// extraction order.
			if strings.Contains(prompt, "Wine A") {
				time.Sleep(30 * time.Millisecond)
				return enrichmentJSON("bright and floral", 90), nil
			}
			return enrichmentJSON("soft and juicy", 85), nil
		},
	}
	p, repo, _ := newTestPipeline(t, 65536, sommelier)
	msg := dispatchMessage(t, repo, "j1")

	require.NoError(t, p.Run(context.Background(), msg))

	job, err := repo.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, job.Status)

	detail, err := repo.GetDetail(context.Background(), "j1")
	require.NoError(t, err)
	require.Len(t, detail.Items, 3)

	// Extraction order is preserved regardless of task completion order.
	assert.Equal(t, "Wine A", detail.Items[0].Name)
	assert.Equal(t, "Bad Wine", detail.Items[1].Name)
	assert.Equal(t, "Wine C", detail.Items[2].Name)

	// Exactly one item degraded, keeping its identification fields.
	assert.Empty(t, detail.Items[0].Error)
	assert.NotEmpty(t, detail.Items[1].Error)
	assert.Empty(t, detail.Items[2].Error)
	assert.Equal(t, 0, detail.Items[1].Score)
	assert.Equal(t, 90, detail.Items[0].Score)
	assert.Equal(t, 85, detail.Items[2].Score)
}

func TestPipelineVisionFailureMarksJobFailed(t *testing.T) {
	sommelier := &fakeSommelier{
		vision: func(context.Context, string, string) (string, error) {
			return "", errors.New("vision endpoint returned 500")
		},
	}
	p, repo, _ := newTestPipeline(t, 65536, sommelier)
	msg := dispatchMessage(t, repo, "j1")

	require.NoError(t, p.Run(context.Background(), msg))

	job, err := repo.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "vision endpoint returned 500")
	assert.NotNil(t, job.CompletedAt)
}

func TestPipelineNotConfiguredSommelierMarksJobFailed(t *testing.T) {
	sommelier := &fakeSommelier{
		vision: func(context.Context, string, string) (string, error) {
			return "", infra.ErrSommelierNotConfigured
		},
	}
	p, repo, _ := newTestPipeline(t, 65536, sommelier)
	msg := dispatchMessage(t, repo, "j1")

	require.NoError(t, p.Run(context.Background(), msg))

	job, err := repo.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "not configured")
}

func TestPipelineOversizeDetailFallsBackToTruncatedSummary(t *testing.T) {
	sommelier := &fakeSommelier{
		vision: func(context.Context, string, string) (string, error) {
			return `[{"name": "Wine A"}, {"name": "Wine B"}]`, nil
		},
		generate: func(context.Context, string) (string, error) {
			return enrichmentJSON(strings.Repeat("long tasting notes ", 50), 80), nil
		},
	}
	p, repo, _ := newTestPipeline(t, 512, sommelier)
	msg := dispatchMessage(t, repo, "j1")

	require.NoError(t, p.Run(context.Background(), msg))

	job, err := repo.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, job.Status)
	require.NotNil(t, job.ResultSummary)
	assert.True(t, job.ResultSummary.Truncated)
	assert.NotEmpty(t, job.ResultSummary.Notice)
	assert.Equal(t, []string{"Wine A", "Wine B"}, job.ResultSummary.ItemNames)

	_, err = repo.GetDetail(context.Background(), "j1")
	assert.ErrorIs(t, err, repository.ErrJobNotFound)
}

func TestPipelineRedeliveryAfterTerminalWriteIsDropped(t *testing.T) {
	sommelier := &fakeSommelier{
		vision: func(context.Context, string, string) (string, error) { return "[]", nil },
	}
	p, repo, _ := newTestPipeline(t, 65536, sommelier)
	msg := dispatchMessage(t, repo, "j1")

	require.NoError(t, p.Run(context.Background(), msg))
	before, err := repo.Get(context.Background(), "j1")
	require.NoError(t, err)

	// A redelivered message must not move the job out of its terminal state.
	require.NoError(t, p.Run(context.Background(), msg))
	after, err := repo.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.CompletedAt.Unix(), after.CompletedAt.Unix())
}

func TestPipelineDetailMatchesWrittenItems(t *testing.T) {
	sommelier := &fakeSommelier{
		vision: func(context.Context, string, string) (string, error) {
			return `[{"name": "Wine A", "producer": "House A", "region": "Burgundy", "varietal": "Pinot Noir"}]`, nil
		},
		generate: func(context.Context, string) (string, error) {
			return enrichmentJSON("silky", 91), nil
		},
	}
	p, repo, _ := newTestPipeline(t, 65536, sommelier)
	msg := dispatchMessage(t, repo, "j1")

	require.NoError(t, p.Run(context.Background(), msg))

	detail, err := repo.GetDetail(context.Background(), "j1")
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)

	item := detail.Items[0]
	assert.Equal(t, "Wine A", item.Name)
	assert.Equal(t, "House A", item.Producer)
	assert.Equal(t, "Burgundy", item.Region)
	assert.Equal(t, "Pinot Noir", item.Varietal)
	assert.Equal(t, 91, item.Score)
	assert.Equal(t, "silky", item.Summary)
	assert.Equal(t, []string{"steak"}, item.Pairings)
	assert.Equal(t, "$20-30", item.PriceEstimate)
	assert.Equal(t, "good", item.ValueRatio)
	assert.Equal(t, map[string]int{"fruit": 7}, item.FlavorProfile)
	assert.Equal(t, msg.ImageURL, item.ImageURL)

	// The serialized detail is what a status reader will reconstruct.
	raw, err := json.Marshal(detail.Items)
	require.NoError(t, err)
	var roundTrip []entity.Item
	require.NoError(t, json.Unmarshal(raw, &roundTrip))
	assert.Equal(t, detail.Items, roundTrip)
}
