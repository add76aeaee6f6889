package ingestion

import (
	"context"
	"testing"

	"github.com/poiesic/mmrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementsParser(t *testing.T) {
	ctx := context.Background()

	t.Run("array form", func(t *testing.T) {
		data := []byte(`[
			{"type": "text", "text": "Intro", "page_number": 1},
			{"type": "text", "text": "  ", "page_number": 1},
			{"type": "image", "image": "AQID", "image_mime": "image/jpeg", "page_number": 3}
		]`)
		parsed, err := ElementsParser{}.Parse(ctx, "paper.json", data)
		require.NoError(t, err)
		require.Len(t, parsed.Elements, 2)
		assert.Equal(t, 3, parsed.PageCount)
		assert.Equal(t, "paper.json", parsed.Elements[0].Source)
		assert.Equal(t, []byte{1, 2, 3}, parsed.Elements[1].Image)
	})

	t.Run("object form", func(t *testing.T) {
		data := []byte(`{"page_count": 12, "elements": [{"type": "table", "table_html": "<table></table>", "source": "p2"}]}`)
		parsed, err := ElementsParser{}.Parse(ctx, "paper.json", data)
		require.NoError(t, err)
		assert.Equal(t, 12, parsed.PageCount)
		require.Len(t, parsed.Elements, 1)
		assert.Equal(t, "p2", parsed.Elements[0].Source)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := ElementsParser{}.Parse(ctx, "paper.json", []byte(`[{"type": "chart", "text": "x"}]`))
		assert.ErrorIs(t, err, core.ErrInvalidElementType)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ElementsParser{}.Parse(ctx, "paper.json", []byte(`{`))
		assert.Error(t, err)
	})
}

func TestTextParser(t *testing.T) {
	data := []byte("First paragraph.\r\n\r\nSecond paragraph.\f" +
		"| Name | Score |\n|---|---|\n| a&b | 1 |\n\nClosing words.")

	parsed, err := TextParser{}.Parse(context.Background(), "notes.md", data)
	require.NoError(t, err)
	assert.Equal(t, 2, parsed.PageCount)
	require.Len(t, parsed.Elements, 4)

	assert.Equal(t, core.ElementText, parsed.Elements[0].Type)
	assert.Equal(t, 1, parsed.Elements[1].Page())

	table := parsed.Elements[2]
	assert.Equal(t, core.ElementTable, table.Type)
	assert.Equal(t, 2, table.Page())
	assert.Equal(t,
		"<table><tr><th>Name</th><th>Score</th></tr><tr><td>a&amp;b</td><td>1</td></tr></table>",
		table.TableHTML)

	assert.Equal(t, "Closing words.", parsed.Elements[3].Text)
	assert.Equal(t, "notes.md", parsed.Elements[3].Source)
}

func TestPipelineParsers(t *testing.T) {
	env := newTestEnv(t, WithParser("PDF", ParserFunc(func(ctx context.Context, name string, data []byte) (*Parsed, error) {
		return &Parsed{}, nil
	})))
	assert.True(t, env.pipeline.Supports("paper.pdf"))
	assert.True(t, env.pipeline.Supports("Notes.TXT"))
	assert.False(t, env.pipeline.Supports("image.tiff"))
}
