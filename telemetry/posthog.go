package telemetry

import (
	"context"

	"github.com/posthog/posthog-go"
)

type posthogService struct {
	client posthog.Client
}

// NewPostHog returns a Service backed by PostHog.
func NewPostHog(publicAPIKey, endpointURL string) (Service, error) {
	client, err := posthog.NewWithConfig(publicAPIKey, posthog.Config{Endpoint: endpointURL})
	if err != nil {
		return nil, err
	}

	return &posthogService{client: client}, nil
}

func (s *posthogService) Send(_ context.Context, event Event) error {
	capture := posthog.Capture{
		DistinctId: event.InstanceID,
		Event:      event.Name,
		Properties: event.Properties,
	}

	if err := capture.Validate(); err != nil {
		return err
	}

	return s.client.Enqueue(capture)
}

func (s *posthogService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}

	return nil
}
