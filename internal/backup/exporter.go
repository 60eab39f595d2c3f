package backup

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/edvin/dochub/internal/core"
)

// TableSpec names a table and the ordered columns to export from it.
type TableSpec struct {
	Name    string
	Columns []string
}

// DefaultTables is the fixed export order for the document hub schema. The
// messages table is exported separately with its own query.
var DefaultTables = []TableSpec{
	{Name: "users", Columns: []string{"user_id", "username", "password_hash", "role", "full_name"}},
	{Name: "documents", Columns: []string{"doc_id", "title", "file_path", "uploaded_by", "upload_date", "user_id", "file_size"}},
	{Name: "activity_logs", Columns: []string{"log_id", "user_id", "action_type", "action_details", "timestamp"}},
}

const messagesQuery = `SELECT message_id, sender_id, receiver_id, message_text, sent_date, is_read FROM messages ORDER BY message_id`

var messagesColumns = []string{"message_id", "sender_id", "receiver_id", "message_text", "sent_date", "is_read"}

// ProgressFunc receives stage progress updates. A nil ProgressFunc is valid.
type ProgressFunc func(percent int, message string)

// Exporter serializes the relational tables into a replayable SQL script:
// one comment header and one INSERT statement per row, columns in declared
// order. Output is deterministic for an unchanged source given a fixed
// clock.
type Exporter struct {
	db     core.DB
	tables []TableSpec
	now    func() time.Time
}

func NewExporter(db core.DB, tables []TableSpec, now func() time.Time) *Exporter {
	if now == nil {
		now = time.Now
	}
	return &Exporter{db: db, tables: tables, now: now}
}

// Export writes the full script to w and returns the exported row count per
// table. A failure on any table aborts the whole export.
func (e *Exporter) Export(ctx context.Context, w io.Writer, backupType, createdBy string, progress ProgressFunc) (map[string]int, error) {
	report := func(percent int, message string) {
		if progress != nil {
			progress(percent, message)
		}
	}
	report(25, "Preparing database export...")

	header := fmt.Sprintf("-- Database Backup - %s\n-- Backup Type: %s\n-- Created By: %s\n\n",
		e.now().Format("2006-01-02 15:04:05"), backupType, createdBy)
	if _, err := io.WriteString(w, header); err != nil {
		return nil, fmt.Errorf("write export header: %w", err)
	}

	counts := make(map[string]int, len(e.tables)+1)
	for i, table := range e.tables {
		report(30+5*i, fmt.Sprintf("Exporting %s table...", table.Name))
		query := fmt.Sprintf("SELECT %s FROM %s ORDER BY 1", strings.Join(table.Columns, ", "), table.Name)
		n, err := e.exportTable(ctx, w, table.Name, table.Columns, query)
		if err != nil {
			return nil, err
		}
		counts[table.Name] = n
	}

	report(45, "Exporting messages...")
	n, err := e.exportTable(ctx, w, "messages", messagesColumns, messagesQuery)
	if err != nil {
		return nil, err
	}
	counts["messages"] = n

	return counts, nil
}

func (e *Exporter) exportTable(ctx context.Context, w io.Writer, name string, columns []string, query string) (int, error) {
	if _, err := fmt.Fprintf(w, "-- %s Table\n", name); err != nil {
		return 0, fmt.Errorf("write %s header: %w", name, err)
	}

	rows, err := e.db.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", name, err)
	}
	defer rows.Close()

	columnList := strings.Join(columns, ", ")
	count := 0
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return 0, fmt.Errorf("read %s row: %w", name, err)
		}
		rendered := make([]string, len(values))
		for i, v := range values {
			rendered[i] = formatValue(v)
		}
		if _, err := fmt.Fprintf(w, "INSERT INTO %s (%s) VALUES (%s);\n", name, columnList, strings.Join(rendered, ", ")); err != nil {
			return 0, fmt.Errorf("write %s row: %w", name, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("scan %s: %w", name, err)
	}
	return count, nil
}

// formatValue renders one database value as a SQL literal. The rules are
// fixed for round-trip fidelity: NULL for nil, quote-doubled and
// backslash-doubled strings in single quotes, timestamps in single quotes,
// everything else via default conversion, unquoted.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + escapeSQL(val) + "'"
	case []byte:
		return "'" + escapeSQL(string(val)) + "'"
	case time.Time:
		return "'" + val.Format("2006-01-02 15:04:05") + "'"
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}

func escapeSQL(s string) string {
	s = strings.ReplaceAll(s, "'", "''")
	return strings.ReplaceAll(s, `\`, `\\`)
}
