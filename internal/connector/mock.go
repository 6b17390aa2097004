package connector

import (
	"context"
	"sync"
)

// MockClient implements Client for testing. Unset functions return empty
// results. Calls are recorded in order.
type MockClient struct {
	SkusByEditionFunc      func(ctx context.Context, editionID, sessionID string) ([]Sku, error)
	PrimeEditionFunc       func(ctx context.Context, editionID, sessionID string) error
	DownloadLinksBySkuFunc func(ctx context.Context, skuID, sessionID, referer string) (*DownloadOptions, error)

	mu    sync.Mutex
	calls []string
}

// NewMockClient creates a new mock client
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Calls returns the operations invoked so far, as "op:argument".
func (m *MockClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockClient) SkusByEdition(ctx context.Context, editionID, sessionID string) ([]Sku, error) {
	m.record(OpSkusByEdition + ":" + editionID)
	if m.SkusByEditionFunc != nil {
		return m.SkusByEditionFunc(ctx, editionID, sessionID)
	}
	return nil, nil
}

func (m *MockClient) PrimeEdition(ctx context.Context, editionID, sessionID string) error {
	m.record(OpPrimeEdition + ":" + editionID)
	if m.PrimeEditionFunc != nil {
		return m.PrimeEditionFunc(ctx, editionID, sessionID)
	}
	return nil
}

func (m *MockClient) DownloadLinksBySku(ctx context.Context, skuID, sessionID, referer string) (*DownloadOptions, error) {
	m.record(OpDownloadLinks + ":" + skuID)
	if m.DownloadLinksBySkuFunc != nil {
		return m.DownloadLinksBySkuFunc(ctx, skuID, sessionID, referer)
	}
	return &DownloadOptions{}, nil
}
