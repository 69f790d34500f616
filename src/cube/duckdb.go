package cube

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"PowerPlantCube/src/processor"
	"PowerPlantCube/src/utils"

	_ "github.com/duckdb/duckdb-go/v2"
)

const duckTable = "power_plants"

// DuckDBStore 将清洗后的表写入内嵌 DuckDB，用 GROUP BY 聚合
type DuckDBStore struct {
	log *slog.Logger
	db  *sql.DB
}

// NewDuckDBStore path 为空时使用内存数据库
func NewDuckDBStore(log *slog.Logger, path string) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to duckdb: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &DuckDBStore{log: log, db: db}, nil
}

func (s *DuckDBStore) Load(ctx context.Context, records []processor.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", duckTable, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Error("failed to rollback transaction", "table", duckTable, "error", err)
		}
	}()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", duckTable)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	createSQL := fmt.Sprintf(`CREATE TABLE %s (
		id BIGINT NOT NULL,
		plant_key VARCHAR PRIMARY KEY,
		%s DOUBLE NOT NULL,
		%s BIGINT NOT NULL,
		%s DOUBLE NOT NULL,
		%s VARCHAR NOT NULL,
		%s DOUBLE,
		%s DOUBLE
	)`, duckTable,
		processor.ColCommissioningYear, processor.ColDecade, processor.ColAge,
		processor.ColCountry, processor.ColCapacityMW, processor.ColCapacityPerYear)
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (id, plant_key, %s, %s, %s, %s, %s, %s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		duckTable,
		processor.ColCommissioningYear, processor.ColDecade, processor.ColAge,
		processor.ColCountry, processor.ColCapacityMW, processor.ColCapacityPerYear))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			int64(r.ID), r.Key, r.CommissioningYear, int64(r.Decade), r.Age,
			r.Country, nullable(r.CapacityMW), nullable(r.CapacityPerYear),
		); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("duckdb table loaded", "table", duckTable, "rows", len(records))
	return nil
}

func (s *DuckDBStore) Aggregate(ctx context.Context, agg Aggregation) ([]Row, error) {
	var (
		where []string
		args  []any
	)
	for _, f := range agg.Filters {
		where = append(where, fmt.Sprintf("%s = ?", f.Level))
		switch schema[f.Level] {
		case kindInt, kindFloat:
			v, err := numericValue(f)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		default:
			args = append(args, f.Value)
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	for _, level := range agg.Levels {
		b.WriteString(level)
		b.WriteString(", ")
	}
	fmt.Fprintf(&b, "SUM(%s), COUNT(*) FROM %s", agg.Column, duckTable)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if len(agg.Levels) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(agg.Levels, ", "))
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", duckTable, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		members, dest := scanTargets(agg.Levels)
		var (
			sum   sql.NullFloat64
			count int64
		)
		dest = append(dest, &sum, &count)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		// 无分组时 SUM 总会返回一行
		if count == 0 {
			continue
		}
		out = append(out, Row{Members: members(), Value: sum.Float64})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}

func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

// scanTargets 按列类型准备扫描目标，members 在 Scan 之后调用
func scanTargets(levels []string) (func() []string, []any) {
	ints := make([]int64, len(levels))
	floats := make([]float64, len(levels))
	texts := make([]string, len(levels))
	dest := make([]any, len(levels))
	for i, level := range levels {
		switch schema[level] {
		case kindInt:
			dest[i] = &ints[i]
		case kindFloat:
			dest[i] = &floats[i]
		default:
			dest[i] = &texts[i]
		}
	}
	return func() []string {
		out := make([]string, len(levels))
		for i, level := range levels {
			switch schema[level] {
			case kindInt:
				out[i] = strconv.FormatInt(ints[i], 10)
			case kindFloat:
				out[i] = utils.FormatFloat(floats[i])
			default:
				out[i] = texts[i]
			}
		}
		return out
	}, dest
}

func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}
