package storage

import "github.com/relaydesk/backend/internal/types"

// Store defines the storage interface
type Store interface {
	SaveConversationRecord(record types.ConversationRecord) error
	SaveRoutingEntry(entry types.RoutingLogEntry) error
	SavePerformanceRecord(record types.PerformanceRecord) error
	GetConversationRecords(dateKey string) ([]types.ConversationRecord, error)
	GetRoutingEntries(dateKey string) ([]types.RoutingLogEntry, error)
	GetAgentConversationsByDate(agentID, date string) ([]types.ConversationRecord, error)
	GetAgentPerformance(agentID string) ([]types.PerformanceRecord, error)
	TruncateAll() error
}

// NoopStore is a no-op implementation when DynamoDB is disabled
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) SaveConversationRecord(_ types.ConversationRecord) error { return nil }
func (s *NoopStore) SaveRoutingEntry(_ types.RoutingLogEntry) error          { return nil }
func (s *NoopStore) SavePerformanceRecord(_ types.PerformanceRecord) error   { return nil }
func (s *NoopStore) GetConversationRecords(_ string) ([]types.ConversationRecord, error) {
	return nil, nil
}
func (s *NoopStore) GetRoutingEntries(_ string) ([]types.RoutingLogEntry, error) { return nil, nil }
func (s *NoopStore) GetAgentConversationsByDate(_, _ string) ([]types.ConversationRecord, error) {
	return nil, nil
}
func (s *NoopStore) GetAgentPerformance(_ string) ([]types.PerformanceRecord, error) {
	return nil, nil
}
func (s *NoopStore) TruncateAll() error { return nil }
