package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/milepost/pkg/logger"
	"github.com/okian/milepost/pkg/metrics"
)

// SQL dialects understood by OpenSQL.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// cacheRow is the persisted form of an Entry.
type cacheRow struct {
	CacheKey  string         `gorm:"column:cache_key;primaryKey;size:64"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;autoCreateTime:false"`
	ExpiresAt time.Time      `gorm:"column:expires_at;index"`
	Results   datatypes.JSON `gorm:"column:results"`
}

func (cacheRow) TableName() string { return "request_cache_entries" }

// OpenSQL opens a GORM connection for dialect. In-memory sqlite databases are
// pinned to one connection so every query sees the same database.
func OpenSQL(dialect, dsn string) (*gorm.DB, error) {
	var d gorm.Dialector
	switch strings.ToLower(dialect) {
	case DialectSQLite:
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		d = sqlite.Open(dsn)
	case DialectPostgres:
		d = postgres.Open(dsn)
	default:
		return nil, errors.Mark(errors.Newf("sql dialect %q", dialect), ErrUnknownBackend)
	}

	db, err := gorm.Open(d, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dialect)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "sql handle")
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// SQLBackend stores entries in the request_cache_entries table.
type SQLBackend struct {
	db    *gorm.DB
	stats prometheus.Collector
}

// NewSQLBackend migrates the cache table and returns a backend on db. The
// connection pool stats are exported as request_cache go_sql_* metrics.
func NewSQLBackend(ctx context.Context, db *gorm.DB) (*SQLBackend, error) {
	if err := db.WithContext(ctx).AutoMigrate(&cacheRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate request_cache_entries")
	}
	b := &SQLBackend{db: db}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "sql handle")
	}
	b.stats = collectors.NewDBStatsCollector(sqlDB, "request_cache")
	if err := metrics.Register(b.stats); err != nil {
		logger.Get().Named("repository").Warn(ctx, "pool stats not exported", logger.Error(err))
		b.stats = nil
	}
	return b, nil
}

func (s *SQLBackend) Name() string { return "sql" }

func (s *SQLBackend) Load(ctx context.Context, key string) (Entry, bool, error) {
	var row cacheRow
	err := s.db.WithContext(ctx).Where("cache_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	results := map[string]json.RawMessage{}
	if len(row.Results) > 0 {
		if err := json.Unmarshal(row.Results, &results); err != nil {
			return Entry{}, false, errors.Mark(errors.Wrapf(err, "results of %s", key), ErrCorruptEntry)
		}
	}
	return Entry{Key: row.CacheKey, CreatedAt: row.CreatedAt, ExpiresAt: row.ExpiresAt, Results: results}, true, nil
}

func (s *SQLBackend) Save(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e.Results)
	if err != nil {
		return errors.Wrap(err, "marshal results")
	}
	row := cacheRow{CacheKey: e.Key, CreatedAt: e.CreatedAt, ExpiresAt: e.ExpiresAt, Results: datatypes.JSON(raw)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"created_at", "expires_at", "results"}),
	}).Create(&row).Error
}

func (s *SQLBackend) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&cacheRow{}).Error
}

// Close releases the underlying connection pool.
func (s *SQLBackend) Close() error {
	if s.stats != nil {
		metrics.Unregister(s.stats)
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
