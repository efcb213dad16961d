package global

import (
	"time"

	"GProject/tools"
)

// AppConfig 治理服务的启动配置，全部可用环境变量覆盖
type AppConfig struct {
	TenantID string // 单租户部署时固定；多租户由请求携带

	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers    []string
	KafkaGroupID    string // 消费组
	GroupEventTopic string // 成员/设置变更事件主题

	NatsServers        []string
	AuditSubjectPrefix string

	IDNodeID int64

	// Pending 审批超龄视为否决；0 表示永不过期
	PendingTTL time.Duration
}

func LoadAppConfig() *AppConfig {
	return &AppConfig{
		TenantID: tools.GetEnv("TENANT_ID", "tenant_001"),

		MongoURI:      tools.GetEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: tools.GetEnv("MONGO_DB", "groupGovernance"),

		RedisAddr:     tools.GetEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: tools.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       tools.GetEnvInt("REDIS_DB", 0),

		KafkaBrokers:    tools.GetEnvList("KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
		KafkaGroupID:    tools.GetEnv("KAFKA_GROUP_ID", "governance-engine"),
		GroupEventTopic: tools.GetEnv("GROUP_EVENT_TOPIC", "group_event"),

		NatsServers:        tools.GetEnvList("NATS_SERVERS", []string{"nats://127.0.0.1:4222"}),
		AuditSubjectPrefix: tools.GetEnv("AUDIT_SUBJECT_PREFIX", "governance.audit"),

		IDNodeID: int64(tools.GetEnvInt("ID_NODE", 100)),

		PendingTTL: time.Duration(tools.GetEnvInt("PENDING_TTL_HOURS", 0)) * time.Hour,
	}
}
