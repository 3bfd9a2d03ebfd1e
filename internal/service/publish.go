package service

import (
	"context"
	"errors"

	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/models"
)

// Publishers fans an event out to every publisher in order. Every publisher
// is called even if an earlier one fails.
type Publishers []domain.EventPublisher

// Publish implements domain.EventPublisher.
func (p Publishers) Publish(ctx context.Context, ev models.Event) error {
	var errs []error

	for _, pub := range p {
		if pub == nil {
			continue
		}

		if err := pub.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
