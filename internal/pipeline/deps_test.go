package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/deckgest/internal/config"
	"github.com/dgallion1/deckgest/internal/extract"
	"github.com/dgallion1/deckgest/internal/parser"
)

func TestDepsExtractText(t *testing.T) {
	deps := testDeps(&fakeText{fail: map[string]bool{"bad.pdf": true}}, &fakeFields{}, 1)

	text, err := deps.ExtractText(context.Background(), pdf, "deck.pdf")
	require.NoError(t, err)
	assert.Equal(t, "text of deck.pdf", text)

	_, err = deps.ExtractText(context.Background(), pdf, "blank.pdf")
	assert.ErrorIs(t, err, parser.ErrEmptyText)

	_, err = deps.ExtractText(context.Background(), pdf, "bad.pdf")
	assert.Error(t, err)
}

func TestNewDepsSelectsProvider(t *testing.T) {
	log := testDeps(nil, nil, 1).Log
	cfg := config.Config{ExtractProvider: config.ProviderLocal, MaxConcurrentExtract: 3, OpenAIModel: "gpt-test"}

	deps, closeDeps := NewDeps(cfg, nil, log)
	defer closeDeps()
	assert.IsType(t, &parser.LocalPDF{}, deps.Extractor)
	assert.IsType(t, &extract.OpenAIClient{}, deps.Fields)
	assert.True(t, deps.Pool.TryAcquire(3))
	assert.False(t, deps.Pool.TryAcquire(1))

	cfg.ExtractProvider = config.ProviderLlamaParse
	deps, closeLlama := NewDeps(cfg, nil, log)
	defer closeLlama()
	assert.IsType(t, &parser.LlamaParse{}, deps.Extractor)
}
