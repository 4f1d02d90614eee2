package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"open-dio/models"
)

// ErrNoPublication is returned by FetchLatest when nothing has been published.
var ErrNoPublication = errors.New("no published multipliers")

// createdAtLayout is fixed-width so created_at sorts lexically in both backends.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

const multiplierBatchSize = 50

var schema = []string{
	`CREATE TABLE IF NOT EXISTS builds (
		id            TEXT    PRIMARY KEY,
		model_version TEXT    NOT NULL,
		created_at    TEXT    NOT NULL,
		sectors       INTEGER NOT NULL,
		report        TEXT    NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS multipliers (
		build_id       TEXT             NOT NULL REFERENCES builds(id),
		sector_code    TEXT             NOT NULL,
		sector_name    TEXT             NOT NULL,
		category       TEXT             NOT NULL,
		total          DOUBLE PRECISION NOT NULL,
		direct         DOUBLE PRECISION NOT NULL,
		low_confidence BOOLEAN          NOT NULL,
		PRIMARY KEY (build_id, sector_code, category)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_builds_created_at ON builds(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_multipliers_sector ON multipliers(sector_code)`,
}

// sqlStore is the schema and queries shared by the SQL backends. Only the
// placeholder syntax differs between them.
type sqlStore struct {
	db          *sql.DB
	name        string
	placeholder func(n int) string
}

func (s *sqlStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: migrate: %w", s.name, err)
		}
	}
	return nil
}

// Write stores the build row and every (sector, category) multiplier in
// one transaction.
func (s *sqlStore) Write(ctx context.Context, pub *Publication) error {
	if pub == nil || len(pub.Table) == 0 {
		return nil
	}

	report := ""
	if pub.Report != nil {
		data, err := json.Marshal(pub.Report)
		if err != nil {
			return fmt.Errorf("%s: encode report: %w", s.name, err)
		}
		report = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", s.name, err)
	}
	defer tx.Rollback()

	insertBuild := fmt.Sprintf(`INSERT INTO builds (id, model_version, created_at, sectors, report) VALUES (%s, %s, %s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5))
	if _, err := tx.ExecContext(ctx, insertBuild,
		pub.BuildID, pub.ModelVersion, pub.CreatedAt.UTC().Format(createdAtLayout), len(pub.Table), report); err != nil {
		return fmt.Errorf("%s: insert build: %w", s.name, err)
	}

	type row struct {
		code, name, category string
		total, direct        float64
		low                  bool
	}
	rows := make([]row, 0, len(pub.Table)*len(pub.Categories))
	for _, code := range pub.Table.Codes() {
		m := pub.Table[code]
		for _, ic := range pub.Categories {
			rows = append(rows, row{code, m.Name, ic.Code, m.Values[ic.Code], m.Direct[ic.Code], m.LowConfidence})
		}
	}

	for i := 0; i < len(rows); i += multiplierBatchSize {
		end := i + multiplierBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[i:end]

		valueStrings := make([]string, 0, len(batch))
		valueArgs := make([]interface{}, 0, len(batch)*7)
		for idx, r := range batch {
			base := idx * 7
			ph := make([]string, 7)
			for k := range ph {
				ph[k] = s.placeholder(base + k + 1)
			}
			valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
			valueArgs = append(valueArgs, pub.BuildID, r.code, r.name, r.category, r.total, r.direct, r.low)
		}
		query := fmt.Sprintf(`
			INSERT INTO multipliers (build_id, sector_code, sector_name, category, total, direct, low_confidence)
			VALUES %s
		`, strings.Join(valueStrings, ","))
		if _, err := tx.ExecContext(ctx, query, valueArgs...); err != nil {
			return fmt.Errorf("%s: insert multipliers: %w", s.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", s.name, err)
	}
	return nil
}

// FetchLatest reads back the most recent build. Categories carry codes only.
func (s *sqlStore) FetchLatest(ctx context.Context) (*Publication, error) {
	pub := &Publication{}
	var createdAt, report string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, model_version, created_at, report
		FROM builds
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&pub.BuildID, &pub.ModelVersion, &createdAt, &report)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPublication
	}
	if err != nil {
		return nil, fmt.Errorf("%s: fetch latest build: %w", s.name, err)
	}
	if pub.CreatedAt, err = time.Parse(createdAtLayout, createdAt); err != nil {
		return nil, fmt.Errorf("%s: build %s created_at %q: %w", s.name, pub.BuildID, createdAt, err)
	}
	if report != "" {
		pub.Report = &models.BuildReport{}
		if err := json.Unmarshal([]byte(report), pub.Report); err != nil {
			return nil, fmt.Errorf("%s: decode report: %w", s.name, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT sector_code, sector_name, category, total, direct, low_confidence
		FROM multipliers
		WHERE build_id = %s
		ORDER BY sector_code, category
	`, s.placeholder(1)), pub.BuildID)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch multipliers: %w", s.name, err)
	}
	defer rows.Close()

	pub.Table = make(models.MultiplierTable)
	seen := make(map[string]bool)
	for rows.Next() {
		var code, name, category string
		var total, direct float64
		var low bool
		if err := rows.Scan(&code, &name, &category, &total, &direct, &low); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", s.name, err)
		}
		m, ok := pub.Table[code]
		if !ok {
			m = models.SectorMultipliers{
				Code:          code,
				Name:          name,
				Values:        make(map[string]float64),
				Direct:        make(map[string]float64),
				LowConfidence: low,
			}
		}
		m.Values[category] = total
		m.Direct[category] = direct
		pub.Table[code] = m
		if !seen[category] {
			seen[category] = true
			pub.Categories = append(pub.Categories, models.ImpactCategory{Code: category})
		}
	}
	return pub, rows.Err()
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
