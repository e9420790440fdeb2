package conn

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Option defines connection options for the local SQLite cache.
type Option struct {
	// Path is the database file. ":memory:" opens an in-memory database.
	Path   string
	Params map[string]string
	Config *gorm.Config
}

// Client wraps a SQLite connection pool.
type Client struct {
	opt Option
	db  *gorm.DB
}

// New opens the SQLite database at the configured path.
func New(option Option) (*Client, error) {
	if option.Path == "" {
		return nil, fmt.Errorf("empty database path")
	}

	config := option.Config
	if config == nil {
		config = &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	}

	db, err := gorm.Open(sqlite.Open(option.dsn()), config)
	if err != nil {
		return nil, err
	}

	return &Client{opt: option, db: db}, nil
}

// DB returns the underlying gorm.DB instance.
func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (o Option) dsn() string {
	params := make([]string, 0, len(o.Params)+1)
	if _, ok := o.Params["_busy_timeout"]; !ok {
		params = append(params, "_busy_timeout=5000")
	}
	for key, value := range o.Params {
		params = append(params, fmt.Sprintf("%s=%s", key, value))
	}
	if len(params) == 0 {
		return o.Path
	}
	return o.Path + "?" + strings.Join(params, "&")
}
