package pdf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func TestExtractPages_ReturnsErrorForGarbageBytes(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())
	_, err := e.ExtractPages(context.Background(), []byte("not a pdf at all"))
	assert.Error(t, err)
}
