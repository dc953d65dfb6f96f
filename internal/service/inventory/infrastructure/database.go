package infrastructure

import (
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stockledger/internal/pkg/bootstrap"
	"stockledger/internal/pkg/logger"
)

const (
	mysqlErrLockDeadlock    = 1213
	mysqlErrLockWaitTimeout = 1205

	slowQueryThreshold = 200 * time.Millisecond
)

// OpenDatabase 根据配置打开 MySQL（默认）或 SQLite 连接
func OpenDatabase(cfg bootstrap.MySQLConfig) (*gorm.DB, error) {
	if cfg.Driver == "sqlite" {
		return OpenSQLite(cfg.DSN)
	}
	return OpenMySQL(cfg)
}

// OpenMySQL 打开 MySQL 连接。时间统一按 UTC 解析，
// innodb_lock_wait_timeout 作为会话变量设置，是行锁等待的唯一超时。
func OpenMySQL(cfg bootstrap.MySQLConfig) (*gorm.DB, error) {
	dsn, err := mysqldriver.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "parse mysql dsn")
	}
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	if cfg.LockWaitTimeout > 0 {
		if dsn.Params == nil {
			dsn.Params = map[string]string{}
		}
		dsn.Params["innodb_lock_wait_timeout"] = strconv.Itoa(cfg.LockWaitTimeout)
	}

	db, err := gorm.Open(mysql.Open(dsn.FormatDSN()), gormConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "open mysql %s/%s", dsn.Addr, dsn.DBName)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// OpenSQLite 打开 SQLite 数据库，用于本地开发和测试。
// SQLite 没有行锁，这里限制为单连接，让事务串行执行。
func OpenSQLite(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "file::memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", dsn)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:  logger.NewGormLogger(gormlogger.Warn, slowQueryThreshold),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// IsRetryable 判断错误是否是可以整体重试事务的瞬时错误（死锁、锁等待超时）
func IsRetryable(err error) bool {
	var me *mysqldriver.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == mysqlErrLockDeadlock || me.Number == mysqlErrLockWaitTimeout
}
