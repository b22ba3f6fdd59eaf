package usecase

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/V4T54L/detection-feed/internal/domain"
)

// ISOTimestamp matches JavaScript's Date.prototype.toISOString.
const ISOTimestamp = "2006-01-02T15:04:05.000Z"

// EventImage is the public listing shape of an event.
type EventImage struct {
	Src         string `json:"src"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

// ListEventsUseCase returns all events, newest first, with servable paths.
type ListEventsUseCase struct {
	store        domain.EventStore
	staticPrefix string
}

func NewListEventsUseCase(store domain.EventStore, staticPrefix string) *ListEventsUseCase {
	return &ListEventsUseCase{
		store:        store,
		staticPrefix: strings.TrimRight(staticPrefix, "/"),
	}
}

func (uc *ListEventsUseCase) List(ctx context.Context) ([]EventImage, error) {
	events, err := uc.store.ListByTimestampDesc(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	images := make([]EventImage, len(events))
	for i, e := range events {
		images[i] = uc.Image(e)
	}
	return images, nil
}

// Image maps one event to its listing entry.
func (uc *ListEventsUseCase) Image(e domain.Event) EventImage {
	return EventImage{
		Src:         uc.staticPrefix + "/" + url.PathEscape(e.Filename),
		Category:    e.Category,
		Description: e.Description,
		Timestamp:   e.Timestamp.UTC().Format(ISOTimestamp),
	}
}
