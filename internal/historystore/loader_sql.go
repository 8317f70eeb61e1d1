// FILE: loader_sql.go
// Package historystore – SQL-backed Loader over a MySQL candle archive.
//
// A small gorm.DB wrapper over a MySQL candle archive. Tables follow
// the naming convention
// "COIN_HISTORY_<ohlcv_field>_<reference_coin>_<granularity>",
// one row per timestamp with one column per base asset.
package historystore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Loader abstracts the archive source; SQLLoader and *CSVLoader both
// implement it. Each loader is configured differently (DSN vs file map)
// before Load is called.
type Loader interface {
	Load(referenceCoin string, granularities []Granularity) (*Cube, error)
}

// SQLLoader reads per-granularity/per-field tables from a MySQL archive.
type SQLLoader struct {
	db *gorm.DB
}

// NewSQLLoader opens a connection using dsn, the standard
// "user:password@tcp(host:port)/dbname?parseTime=True" gorm/MySQL DSN.
func NewSQLLoader(dsn string) (*SQLLoader, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("historystore: connect mysql: %w", err)
	}
	return &SQLLoader{db: db}, nil
}

// NewSQLLoaderWithDB wraps an already-open *gorm.DB.
func NewSQLLoaderWithDB(db *gorm.DB) *SQLLoader {
	return &SQLLoader{db: db}
}

func tableName(field OHLCVField, referenceCoin string, granularity Granularity) string {
	return fmt.Sprintf("COIN_HISTORY_%s_%s_%s", field, referenceCoin, granularity)
}

// candleRow mirrors one archive row: a timestamp plus one float column
// per base asset, captured generically since the asset-column set is
// only known once the table is described.
type candleRow map[string]interface{}

// Load implements Loader by reading one table per (field, granularity)
// for the five real OHLCV fields (weight is synthesised, never stored).
func (l *SQLLoader) Load(referenceCoin string, granularities []Granularity) (*Cube, error) {
	fields := []OHLCVField{FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume}
	frames := make(map[Granularity]*Frame, len(granularities))

	for _, g := range granularities {
		rowsByTs := map[int64]map[OHLCVField]map[string]float64{}
		assetSet := map[string]bool{}

		for _, field := range fields {
			table := tableName(field, referenceCoin, g)
			var rows []candleRow
			if err := l.db.Table(table).Order("timestamp ASC").Find(&rows).Error; err != nil {
				return nil, fmt.Errorf("historystore: read %s: %w", table, err)
			}
			for _, row := range rows {
				tsRaw, ok := row["timestamp"]
				if !ok {
					continue
				}
				ts, ok := toInt64(tsRaw)
				if !ok {
					continue
				}
				vals := map[string]float64{}
				for col, raw := range row {
					if col == "timestamp" {
						continue
					}
					f, ok := toFloat64(raw)
					if !ok {
						continue
					}
					vals[col] = f
					assetSet[col] = true
				}
				if rowsByTs[ts] == nil {
					rowsByTs[ts] = map[OHLCVField]map[string]float64{}
				}
				rowsByTs[ts][field] = vals
			}
		}

		assets := make([]string, 0, len(assetSet))
		for a := range assetSet {
			assets = append(assets, a)
		}
		archiveRows := make([]Row, 0, len(rowsByTs))
		for ts, vals := range rowsByTs {
			archiveRows = append(archiveRows, Row{TimestampMs: ts, Values: vals})
		}
		frame, err := NewFrame(g, referenceCoin, assets, archiveRows)
		if err != nil {
			return nil, err
		}
		frames[g] = frame
	}
	return NewCube(frames), nil
}

func toInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
