// Package quality profiles raw event-log files before a reconciliation
// run: per-column completeness and cardinality, plus event-log shape
// metrics (states, phases, timestamp coverage).
package quality

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

// ColumnMetrics holds profile metrics for a single column.
type ColumnMetrics struct {
	Name           string
	Type           string
	RowCount       int64
	NullCount      int64
	DistinctCount  int64
	NullPct        float64
	CardinalityPct float64
	Entropy        float64 // Shannon entropy in bits
}

// LogMetrics profiles one event-log file.
type LogMetrics struct {
	Path        string
	RowCount    int64
	ColumnCount int
	Columns     []ColumnMetrics

	EventsByState    map[string]int64
	EventsByPhase    map[string]int64
	DistinctRawIDs   int64
	InvalidTimestamp int64
	Fingerprint      string

	ComputeTime time.Duration
}

// Analyzer profiles event logs through an embedded DuckDB instance.
type Analyzer struct {
	db            *sql.DB
	nullThreshold float64
}

// NewAnalyzer creates an analyzer. nullThreshold is the null fraction
// above which a column is flagged in the report.
func NewAnalyzer(nullThreshold float64) (*Analyzer, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	return &Analyzer{db: db, nullThreshold: nullThreshold}, nil
}

// Close releases the embedded database.
func (a *Analyzer) Close() error {
	return a.db.Close()
}

func readCSV(path string) string {
	return fmt.Sprintf("read_csv_auto('%s', header=true, all_varchar=true, ignore_errors=true)", escapePath(path))
}

// AnalyzeCSV profiles an event-log CSV file.
func (a *Analyzer) AnalyzeCSV(ctx context.Context, path string) (*LogMetrics, error) {
	start := time.Now()
	m := &LogMetrics{
		Path:          path,
		EventsByState: map[string]int64{},
		EventsByPhase: map[string]int64{},
	}

	if err := a.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, readCSV(path))).Scan(&m.RowCount); err != nil {
		return nil, fmt.Errorf("counting rows: %w", err)
	}

	columns, types, err := a.describe(ctx, path)
	if err != nil {
		return nil, err
	}
	m.ColumnCount = len(columns)

	for i, col := range columns {
		cm, err := a.analyzeColumn(ctx, path, col, types[i])
		if err != nil {
			continue
		}
		m.Columns = append(m.Columns, *cm)
	}

	if err := a.groupCount(ctx, path, "state", m.EventsByState); err != nil {
		return nil, err
	}
	if err := a.groupCount(ctx, path, "phase", m.EventsByPhase); err != nil {
		return nil, err
	}

	a.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(DISTINCT activity_id) FROM %s`, readCSV(path))).Scan(&m.DistinctRawIDs)

	a.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE TRY_CAST(ts AS TIMESTAMPTZ) IS NULL`,
		readCSV(path))).Scan(&m.InvalidTimestamp)

	m.Fingerprint = a.fingerprint(ctx, path, columns)

	m.ComputeTime = time.Since(start)
	return m, nil
}

func (a *Analyzer) describe(ctx context.Context, path string) ([]string, []string, error) {
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(
		`DESCRIBE SELECT * FROM %s`, readCSV(path)))
	if err != nil {
		return nil, nil, fmt.Errorf("describing columns: %w", err)
	}
	defer rows.Close()

	var columns, types []string
	for rows.Next() {
		var name, dtype string
		var null, key, dflt, extra any
		if err := rows.Scan(&name, &dtype, &null, &key, &dflt, &extra); err != nil {
			continue
		}
		columns = append(columns, name)
		types = append(types, dtype)
	}
	return columns, types, rows.Err()
}

func (a *Analyzer) analyzeColumn(ctx context.Context, path, column, dtype string) (*ColumnMetrics, error) {
	m := &ColumnMetrics{Name: column, Type: dtype}

	query := fmt.Sprintf(`
		SELECT
			COUNT(*) as total,
			COUNT(*) - COUNT(NULLIF("%s", '')) as nulls,
			COUNT(DISTINCT NULLIF("%s", '')) as distinct_count,
			COALESCE(entropy(NULLIF("%s", '')), 0) as entropy
		FROM %s
	`, column, column, column, readCSV(path))

	if err := a.db.QueryRowContext(ctx, query).Scan(&m.RowCount, &m.NullCount, &m.DistinctCount, &m.Entropy); err != nil {
		return nil, err
	}
	if m.RowCount > 0 {
		m.NullPct = float64(m.NullCount) / float64(m.RowCount) * 100
		m.CardinalityPct = float64(m.DistinctCount) / float64(m.RowCount) * 100
	}
	return m, nil
}

// fingerprint hashes the first columns of the first rows so two pulls
// of the same export can be told apart from a changed one without
// diffing files.
func (a *Analyzer) fingerprint(ctx context.Context, path string, columns []string) string {
	if len(columns) > 3 {
		columns = columns[:3]
	}
	colExpr := make([]string, len(columns))
	for i, c := range columns {
		colExpr[i] = fmt.Sprintf(`COALESCE("%s"::VARCHAR, '')`, c)
	}

	query := fmt.Sprintf(`
		SELECT md5(string_agg(%s, '|'))
		FROM (SELECT * FROM %s LIMIT 10000)
	`, strings.Join(colExpr, " || ',' || "), readCSV(path))

	var fp string
	a.db.QueryRowContext(ctx, query).Scan(&fp)
	return fp
}

func (a *Analyzer) groupCount(ctx context.Context, path, column string, out map[string]int64) error {
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT COALESCE(NULLIF("%s", ''), '(empty)'), COUNT(*) FROM %s GROUP BY 1`,
		column, readCSV(path)))
	if err != nil {
		return fmt.Errorf("grouping by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			continue
		}
		out[key] = count
	}
	return rows.Err()
}

// Report generates a human-readable profile report.
func (m *LogMetrics) Report(nullThreshold float64) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("EVENT LOG PROFILE: %s\n", m.Path))
	sb.WriteString("─────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("  Rows:                %d\n", m.RowCount))
	sb.WriteString(fmt.Sprintf("  Columns:             %d\n", m.ColumnCount))
	sb.WriteString(fmt.Sprintf("  Distinct raw ids:    %d\n", m.DistinctRawIDs))
	sb.WriteString(fmt.Sprintf("  Invalid timestamps:  %d\n", m.InvalidTimestamp))
	if m.Fingerprint != "" {
		sb.WriteString(fmt.Sprintf("  Fingerprint:         %s\n", m.Fingerprint))
	}
	sb.WriteString("\n")

	sb.WriteString("COLUMNS:\n")
	sb.WriteString("─────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("  %-16s %8s %8s %9s %8s\n", "Column", "Nulls", "Null%", "Distinct", "Entropy"))
	for _, c := range m.Columns {
		flag := ""
		if c.NullPct/100 > nullThreshold {
			flag = "  <- above null threshold"
		}
		sb.WriteString(fmt.Sprintf("  %-16s %8d %7.1f%% %9d %8.2f%s\n",
			truncate(c.Name, 16), c.NullCount, c.NullPct, c.DistinctCount, c.Entropy, flag))
	}

	sb.WriteString("\nEVENTS BY STATE:\n")
	for _, state := range sortedKeys(m.EventsByState) {
		sb.WriteString(fmt.Sprintf("  %-16s %8d\n", state, m.EventsByState[state]))
	}

	sb.WriteString("\nEVENTS BY PHASE:\n")
	for _, phase := range sortedKeys(m.EventsByPhase) {
		sb.WriteString(fmt.Sprintf("  %-16s %8d\n", phase, m.EventsByPhase[phase]))
	}

	return sb.String()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escapePath(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
