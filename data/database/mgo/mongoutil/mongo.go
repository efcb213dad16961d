package mongoutil

import (
	"context"
	"time"

	"GProject/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config represents the MongoDB configuration.
type Config struct {
	Uri         string
	Address     []string
	Database    string
	Username    string
	Password    string
	AuthSource  string
	MaxPoolSize int
	MaxRetry    int
}

// 将 Config 应用到 ClientOptions
func applyConfigToOptions(cfg *Config) (*options.ClientOptions, error) {
	var opts *options.ClientOptions

	switch {
	case cfg.Uri != "":
		// 优先使用完整 URI（可含参数 ?authSource=admin 等）
		opts = options.Client().ApplyURI(cfg.Uri)
	case len(cfg.Address) > 0:
		// 其次使用地址列表
		opts = options.Client().SetHosts(cfg.Address)
	default:
		return nil, errs.New("mongo uri or address is required")
	}

	// 连接池
	opts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))

	// 认证：若单独给了用户名/密码/来源，以代码优先覆盖 URI 中的认证（如有）
	if cfg.Username != "" {
		cred := options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		}
		opts.SetAuth(cred)
	}

	return opts, nil
}

type Client struct {
	db *mongo.Database
}

func (c *Client) GetDB() *mongo.Database {
	return c.db
}

// WithTransaction 在单个会话事务内执行 fn。
// 审批存储的复合写（建单+初始票、投票+读计票）依赖它保证原子性。
func (c *Client) WithTransaction(ctx context.Context, fn func(sc mongo.SessionContext) (any, error)) (any, error) {
	sess, err := c.db.Client().StartSession()
	if err != nil {
		return nil, errs.WrapMsg(err, "start mongo session")
	}
	defer sess.EndSession(ctx)
	return sess.WithTransaction(ctx, fn)
}

// NewMongoDB initializes a new MongoDB connection.
func NewMongoDB(ctx context.Context, config *Config) (*Client, error) {
	if err := config.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	opts, err := applyConfigToOptions(config)
	if err != nil {
		return nil, err
	}

	var cli *mongo.Client
	for i := 0; i < config.MaxRetry; i++ {
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		cli, err = mongo.Connect(connCtx, opts)
		if err == nil {
			err = cli.Ping(connCtx, nil)
		}
		cancel()
		if err == nil {
			return &Client{db: cli.Database(config.Database)}, nil
		}
		if !shouldRetry(ctx, err) {
			break
		}
		time.Sleep(time.Second)
	}
	return nil, errs.WrapMsg(err, "mongo connect failed", "URI", config.Uri, "Database", config.Database)
}
