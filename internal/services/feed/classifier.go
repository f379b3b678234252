package feed

import (
	"context"

	"github.com/ternarybob/vetting-core/internal/interfaces"
	"github.com/ternarybob/vetting-core/internal/models"
)

// NullClassifier implements interfaces.Classifier as a no-op. Job
// classification into a fixed taxonomy is explicitly out of scope; this
// exists only so the builder has something to depend on at the seam
// without special-casing "no classifier configured."
type NullClassifier struct{}

func NewNullClassifier() *NullClassifier {
	return &NullClassifier{}
}

var _ interfaces.Classifier = (*NullClassifier)(nil)

func (c *NullClassifier) Classify(ctx context.Context, job *models.Job) (interfaces.ClassificationTag, error) {
	return interfaces.ClassificationTag{}, nil
}
