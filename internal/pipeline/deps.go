package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/dgallion1/deckgest/internal/config"
	"github.com/dgallion1/deckgest/internal/extract"
	"github.com/dgallion1/deckgest/internal/parser"
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Extractor parser.TextExtractor
	Fields    extract.FieldExtractor
	// Pool bounds concurrent text extractions across all sessions.
	Pool *semaphore.Weighted
	Log  *slog.Logger
}

// NewDeps builds the text and field extractors selected by cfg. The
// returned func releases their HTTP clients.
func NewDeps(cfg config.Config, stats *extract.LLMStats, log *slog.Logger) (Deps, func()) {
	var (
		text    parser.TextExtractor
		closers []func()
	)
	switch cfg.ExtractProvider {
	case config.ProviderLocal:
		text = &parser.LocalPDF{FallbackPdftotext: cfg.PDFFallbackPdftotext}
	default:
		lp := parser.NewLlamaParse(parser.LlamaParseConfig{
			APIKey:       cfg.LlamaCloudAPIKey,
			BaseURL:      cfg.LlamaCloudBaseURL,
			PollInterval: cfg.LlamaParsePollInterval,
			Timeout:      cfg.LlamaParseTimeout,
			Retry:        cfg.ExtractRetry(),
		}, log)
		text = lp
		closers = append(closers, lp.Close)
	}

	llm := extract.NewOpenAIClient(extract.OpenAIConfig{
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		Model:          cfg.OpenAIModel,
		Temperature:    cfg.OpenAITemperature,
		Timeout:        cfg.OpenAITimeout,
		MaxInputTokens: cfg.MaxInputTokens,
		Retry:          cfg.LLMRetry(),
	}, stats, log)
	closers = append(closers, llm.Close)

	log.Info("collaborators configured",
		"extract_provider", cfg.ExtractProvider,
		"llm_model", cfg.OpenAIModel,
		"max_concurrent_extract", cfg.MaxConcurrentExtract,
	)
	deps := Deps{
		Extractor: text,
		Fields:    llm,
		Pool:      semaphore.NewWeighted(int64(cfg.MaxConcurrentExtract)),
		Log:       log,
	}
	return deps, func() {
		for _, c := range closers {
			c()
		}
	}
}

// ExtractText runs one text extraction outside any session, still bounded
// by the shared pool.
func (d Deps) ExtractText(ctx context.Context, data []byte, fileName string) (string, error) {
	if err := d.Pool.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer d.Pool.Release(1)

	text, err := d.Extractor.ExtractText(ctx, data, fileName)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", parser.ErrEmptyText
	}
	return text, nil
}
