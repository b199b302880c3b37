package storage

import "os"

// DynamoMode represents the DynamoDB connection mode
type DynamoMode string

const (
	DynamoModeLocal DynamoMode = "local"
	DynamoModeAWS   DynamoMode = "aws"
	DynamoModeNone  DynamoMode = "none"
)

// DynamoConfig holds DynamoDB configuration
type DynamoConfig struct {
	Mode               DynamoMode
	Endpoint           string // for local mode
	Region             string
	ConversationsTable string
	RoutingLogTable    string
	PerformanceTable   string
}

// LoadDynamoConfig loads DynamoDB config from environment
func LoadDynamoConfig() DynamoConfig {
	mode := DynamoMode(getEnv("DYNAMO_MODE", "none"))
	if mode != DynamoModeLocal && mode != DynamoModeAWS {
		mode = DynamoModeNone
	}

	return DynamoConfig{
		Mode:               mode,
		Endpoint:           getEnv("DYNAMO_ENDPOINT", "http://localhost:8000"),
		Region:             getEnv("DYNAMO_REGION", "eu-central-1"),
		ConversationsTable: getEnv("DYNAMO_CONVERSATIONS_TABLE", "relaydesk-conversations"),
		RoutingLogTable:    getEnv("DYNAMO_ROUTING_LOG_TABLE", "relaydesk-routing-log"),
		PerformanceTable:   getEnv("DYNAMO_PERFORMANCE_TABLE", "relaydesk-agent-performance"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
