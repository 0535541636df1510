package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"MacroPanel/internal/domain/models"
	domrepo "MacroPanel/internal/domain/repository"
	pkgch "MacroPanel/pkg/clickhouse"
	applogger "MacroPanel/pkg/logger"
	"MacroPanel/pkg/util"
)

// CHPanelStore implements PanelStore backed by ClickHouse.
type CHPanelStore struct {
	ch        *pkgch.Client
	db        *sql.DB
	database  string
	batchSize int
	l         *applogger.Logger
}

func NewCHPanelStore(ch *pkgch.Client, database string, batchSize int) *CHPanelStore {
	if batchSize <= 0 {
		batchSize = 2000
	}
	return &CHPanelStore{ch: ch, db: ch.DB(), database: database, batchSize: batchSize}
}

// SetLogger injects a structured logger.
func (s *CHPanelStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHPanelStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, pkgch.PanelSchema(s.database))
}

func (s *CHPanelStore) LoadObservations(ctx context.Context, q domrepo.PanelQuery) (models.Panel, error) {
	start := time.Now()
	query, args := s.selectQuery(q)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logError("clickhouse load_observations query error", q, err)
		return nil, fmt.Errorf("load observations: %w", err)
	}
	defer rows.Close()

	out := make(models.Panel, 0, 1024)
	for rows.Next() {
		var o models.Observation
		if err := rows.Scan(&o.CrossSection, &o.Category, &o.Date, &o.Value); err != nil {
			s.logError("clickhouse load_observations scan error", q, err)
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Date = util.Day(o.Date)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		s.logError("clickhouse load_observations rows error", q, err)
		return nil, fmt.Errorf("rows: %w", err)
	}

	if s.l != nil {
		s.l.Debug("clickhouse load_observations ok",
			applogger.Strings("categories", q.Categories),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

// selectQuery builds the filtered read. FINAL collapses replaced versions of a point.
func (s *CHPanelStore) selectQuery(q domrepo.PanelQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	if len(q.Categories) > 0 {
		where = append(where, "xcat IN ("+placeholders(len(q.Categories))+")")
		for _, c := range q.Categories {
			args = append(args, c)
		}
	}
	if len(q.CrossSections) > 0 {
		where = append(where, "cid IN ("+placeholders(len(q.CrossSections))+")")
		for _, c := range q.CrossSections {
			args = append(args, c)
		}
	}
	if !q.Window.Start.IsZero() {
		where = append(where, "real_date >= ?")
		args = append(args, q.Window.Start)
	}
	if !q.Window.End.IsZero() {
		where = append(where, "real_date <= ?")
		args = append(args, q.Window.End)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT cid, xcat, real_date, value FROM %s.panel_observations FINAL", s.database)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY xcat, cid, real_date")
	return b.String(), args
}

// StoreObservations writes values in chunks; missing values are skipped since
// absence already means missing in a long panel.
func (s *CHPanelStore) StoreObservations(ctx context.Context, p models.Panel) error {
	query := fmt.Sprintf("INSERT INTO %s.panel_observations (cid, xcat, real_date, value)", s.database)
	rows := make([][]any, 0, len(p))
	for _, o := range p {
		if o.Missing() {
			continue
		}
		rows = append(rows, []any{o.CrossSection, o.Category, util.Day(o.Date), o.Value})
	}
	return s.insertChunks(ctx, query, rows)
}

func (s *CHPanelStore) StoreScores(ctx context.Context, runID string, p models.Panel) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("%w: run id %q: %v", models.ErrConfig, runID, err)
	}
	query := fmt.Sprintf("INSERT INTO %s.panel_scores (cid, xcat, real_date, value, run_id)", s.database)
	rows := make([][]any, 0, len(p))
	for _, o := range p {
		var v any
		if !math.IsNaN(o.Value) && !math.IsInf(o.Value, 0) {
			v = o.Value
		}
		rows = append(rows, []any{o.CrossSection, o.Category, util.Day(o.Date), v, id})
	}
	return s.insertChunks(ctx, query, rows)
}

func (s *CHPanelStore) insertChunks(ctx context.Context, query string, rows [][]any) error {
	start := time.Now()
	for from := 0; from < len(rows); from += s.batchSize {
		to := min(from+s.batchSize, len(rows))
		if err := s.ch.InsertBatch(ctx, query, rows[from:to]); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse insert error",
					applogger.String("query", query),
					applogger.Int("offset", from),
					applogger.Error(err),
				)
			}
			return err
		}
	}
	if s.l != nil && len(rows) > 0 {
		s.l.Debug("clickhouse insert ok",
			applogger.String("query", query),
			applogger.Int("rows", len(rows)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *CHPanelStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHPanelStore) Close() error {
	return s.ch.Close()
}

func (s *CHPanelStore) logError(msg string, q domrepo.PanelQuery, err error) {
	if s.l == nil {
		return
	}
	s.l.Error(msg,
		applogger.Strings("categories", q.Categories),
		applogger.Strings("cids", q.CrossSections),
		applogger.Error(err),
	)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
