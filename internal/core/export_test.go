package core

import "context"

// SetDocumentFetcher lets tests serve receipt downloads without the network.
func SetDocumentFetcher(svc CorrectionService, fetch func(ctx context.Context, url string) ([]byte, error)) {
	if s, ok := svc.(*correctionService); ok {
		s.fetch = fetch
	}
}
