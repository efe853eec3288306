package records

import (
	"context"
	"errors"
	"fmt"
	"log"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
)

// DBRepository reads and writes live records in the host application's
// MySQL database. Records are handled as schemaless maps; the table for a
// logical model follows gorm's naming convention (Patient -> patients).
type DBRepository struct {
	db     *gorm.DB
	models []string
	naming schema.Namer
}

// NewDBRepository wraps an open database handle. The model list fixes
// which tables snapshots cover.
func NewDBRepository(db *gorm.DB, models []string) *DBRepository {
	return &DBRepository{
		db:     db,
		models: models,
		naming: schema.NamingStrategy{},
	}
}

// ConnectRecordsDB opens the host application's database from the global
// configuration.
func ConnectRecordsDB() (*gorm.DB, error) {
	cfg := config.CFG.RecordsDB

	dsnCfg := mysqldriver.NewConfig()
	dsnCfg.User = cfg.Username
	dsnCfg.Passwd = cfg.Password
	dsnCfg.Net = "tcp"
	dsnCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dsnCfg.DBName = cfg.Database
	dsnCfg.ParseTime = true
	dsnCfg.Params = map[string]string{"charset": "utf8mb4"}
	dsn := dsnCfg.FormatDSN()

	logLevel := logger.Silent
	if config.CFG.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to records database: %w", err)
	}

	log.Printf("Connected to records database at %s:%d", cfg.Host, cfg.Port)
	return db, nil
}

func (r *DBRepository) tableFor(model string) string {
	return r.naming.TableName(model)
}

// Models lists the logical model names the repository holds.
func (r *DBRepository) Models(ctx context.Context) ([]string, error) {
	models := make([]string, len(r.models))
	copy(models, r.models)
	return models, nil
}

// FetchAll returns every record of a model.
func (r *DBRepository) FetchAll(ctx context.Context, model string) ([]Record, error) {
	var rows []map[string]interface{}
	if err := r.db.WithContext(ctx).Table(r.tableFor(model)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch %s records: %w", model, err)
	}

	recs := make([]Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, Record(row))
	}
	return recs, nil
}

// FindByNaturalKey returns the record whose keyField equals keyValue.
func (r *DBRepository) FindByNaturalKey(ctx context.Context, model, keyField string, keyValue interface{}) (Record, bool, error) {
	var row map[string]interface{}
	err := r.db.WithContext(ctx).Table(r.tableFor(model)).
		Where(fmt.Sprintf("%s = ?", keyField), keyValue).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up %s record: %w", model, err)
	}
	return Record(row), true, nil
}

// Upsert inserts the record, or replaces the record with the same natural
// key.
func (r *DBRepository) Upsert(ctx context.Context, model, keyField string, rec Record) error {
	keyValue, err := KeyValue(rec, keyField)
	if err != nil {
		return err
	}

	table := r.tableFor(model)
	_, found, err := r.FindByNaturalKey(ctx, model, keyField, keyValue)
	if err != nil {
		return err
	}

	if found {
		err = r.db.WithContext(ctx).Table(table).
			Where(fmt.Sprintf("%s = ?", keyField), keyValue).
			Updates(map[string]interface{}(rec)).Error
	} else {
		err = r.db.WithContext(ctx).Table(table).
			Create(map[string]interface{}(rec)).Error
	}
	if err != nil {
		return fmt.Errorf("failed to upsert %s record: %w", model, err)
	}
	return nil
}

// Delete removes the record with the given natural key.
func (r *DBRepository) Delete(ctx context.Context, model, keyField string, keyValue interface{}) error {
	err := r.db.WithContext(ctx).
		Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", r.tableFor(model), keyField), keyValue).Error
	if err != nil {
		return fmt.Errorf("failed to delete %s record: %w", model, err)
	}
	return nil
}

// RunInTransaction executes fn against a transactional view of one model.
// A returned error rolls the model's changes back.
func (r *DBRepository) RunInTransaction(ctx context.Context, model string, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DBRepository{db: tx, models: r.models, naming: r.naming})
	})
}
