// Package db persists dispatched-plan outcomes to MySQL via GORM (spec.md
// §3: "only successfully-dispatched plans persist via the tx hash";
// SPEC_FULL.md §2's Persistence section), adapted from the teacher's
// AssetSnapshotRecord/MySQLRecorder pattern.
package db

import (
	"fmt"
	"math/big"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DispatchRecord is the database model for one dispatched plan's outcome:
// the path it came from, the amounts the evaluator computed, and the
// terminal on-chain state the dispatcher observed.
type DispatchRecord struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp    time.Time `gorm:"index;not null"`
	PathID       string    `gorm:"type:varchar(512);index;not null"`
	TxHash       string    `gorm:"type:varchar(66);uniqueIndex;not null"`
	AmountInWei  string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	ProfitWei    string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	GasCostWei   string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	GasPriceWei  string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	FinalState   string    `gorm:"type:varchar(16);not null;comment:Mined, Reverted, or TimedOut"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (DispatchRecord) TableName() string {
	return "dispatch_records"
}

// MySQLRecorder implements plan-outcome persistence using GORM and MySQL.
type MySQLRecorder struct {
	db *gorm.DB
}

// NewMySQLRecorder creates a new MySQLRecorder instance.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewMySQLRecorder(dsn string) (*MySQLRecorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	if err := db.AutoMigrate(&DispatchRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &MySQLRecorder{db: db}, nil
}

// NewMySQLRecorderWithDB creates a new MySQLRecorder with an existing GORM DB instance.
func NewMySQLRecorderWithDB(db *gorm.DB) (*MySQLRecorder, error) {
	if err := db.AutoMigrate(&DispatchRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &MySQLRecorder{db: db}, nil
}

// RecordDispatch persists one dispatched plan's outcome. Only plans that
// reached Submit() are recorded — a skipped or validation-failed plan
// never touches the database (spec.md §3).
func (r *MySQLRecorder) RecordDispatch(pathID, txHash string, amountIn, profit, gasCost, gasPrice *big.Int, finalState string) error {
	record := DispatchRecord{
		Timestamp:   time.Now(),
		PathID:      pathID,
		TxHash:      txHash,
		AmountInWei: bigIntToString(amountIn),
		ProfitWei:   bigIntToString(profit),
		GasCostWei:  bigIntToString(gasCost),
		GasPriceWei: bigIntToString(gasPrice),
		FinalState:  finalState,
	}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record dispatch: %w", result.Error)
	}
	return nil
}

// GetDB returns the underlying GORM DB instance for advanced queries.
func (r *MySQLRecorder) GetDB() *gorm.DB {
	return r.db
}

// Close closes the database connection.
func (r *MySQLRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

// GetLatestDispatch retrieves the most recent dispatch record.
func (r *MySQLRecorder) GetLatestDispatch() (*DispatchRecord, error) {
	var record DispatchRecord
	result := r.db.Order("timestamp DESC").First(&record)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get latest dispatch: %w", result.Error)
	}
	return &record, nil
}

// GetDispatchesByTimeRange retrieves dispatch records within a time range.
func (r *MySQLRecorder) GetDispatchesByTimeRange(start, end time.Time) ([]DispatchRecord, error) {
	var records []DispatchRecord
	result := r.db.Where("timestamp BETWEEN ? AND ?", start, end).
		Order("timestamp ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get dispatches by time range: %w", result.Error)
	}
	return records, nil
}

// GetDispatchesByPathID retrieves all dispatch records for a given path,
// used to audit how often a given cycle has actually filled on-chain.
func (r *MySQLRecorder) GetDispatchesByPathID(pathID string) ([]DispatchRecord, error) {
	var records []DispatchRecord
	result := r.db.Where("path_id = ?", pathID).
		Order("timestamp ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get dispatches by path id: %w", result.Error)
	}
	return records, nil
}

// CountDispatches returns the total number of dispatch records.
func (r *MySQLRecorder) CountDispatches() (int64, error) {
	var count int64
	result := r.db.Model(&DispatchRecord{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count dispatches: %w", result.Error)
	}
	return count, nil
}
