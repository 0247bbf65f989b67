package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/deckgest/internal/schema"
)

func TestInvokerCancellationKeepsOneOutcomePerItem(t *testing.T) {
	fields := &fakeFields{}
	inv := NewInvoker(fields, testDeps(nil, nil, 1).Log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := []Item{{FileID: "1", FileName: "a.pdf", Text: "a"}, {FileID: "2", FileName: "b.pdf", Text: "b"}}
	res := inv.Run(ctx, items, schema.Default())

	require.Len(t, res.Outcomes, 2)
	for i, o := range res.Outcomes {
		assert.Equal(t, items[i].FileID, o.FileID)
		assert.Nil(t, o.Record)
		assert.True(t, errors.Is(o.Err, context.Canceled))
	}
	assert.Empty(t, res.Records())
	assert.Empty(t, fields.order())
}

func TestInvokerTwoFilesOneFailure(t *testing.T) {
	fields := &fakeFields{fail: map[string]bool{"second": true}}
	inv := NewInvoker(fields, testDeps(nil, nil, 1).Log)

	res := inv.Run(context.Background(), []Item{
		{FileID: "1", FileName: "one.pdf", Text: "first deck"},
		{FileID: "2", FileName: "two.pdf", Text: "second deck"},
	}, schema.Default())

	require.Len(t, res.Outcomes, 2)
	require.Len(t, res.Records(), 1)
	assert.Equal(t, "one.pdf", res.Records()[0].FileName)
	assert.True(t, res.HasErrors())
}
