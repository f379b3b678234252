package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/vetting-core/internal/models"
)

func TestNullClassifier_AlwaysReturnsEmptyTag(t *testing.T) {
	c := NewNullClassifier()
	job := &models.Job{JobID: "1", Title: "Engineer"}

	tag, err := c.Classify(context.Background(), job)
	require.NoError(t, err)
	assert.Empty(t, tag.JobFunction)
	assert.Empty(t, tag.JobIndustries)
	assert.Empty(t, tag.SeniorityLevel)
}
