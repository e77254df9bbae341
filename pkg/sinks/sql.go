package sinks

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/oarkflow/json"
	"github.com/oarkflow/squealx"
	"github.com/oarkflow/squealx/connection"

	"github.com/oarkflow/hl7/pkg/config"
	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/utils"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQL stores one row per message: control id, message type and the whole
// record as JSON.
type SQL struct {
	cfg    config.SinkConfig
	driver string
	table  string
	db     *squealx.DB
}

func NewSQL(cfg config.SinkConfig) (*SQL, error) {
	driver := strings.ToLower(cfg.Type)
	switch driver {
	case "postgresql":
		driver = "postgres"
	case "mariadb":
		driver = "mysql"
	}
	table := cfg.Table
	if table == "" {
		table = "hl7_messages"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("sql sink: invalid table name %q", table)
	}
	return &SQL{cfg: cfg, driver: driver, table: table}, nil
}

func (s *SQL) Setup(ctx context.Context) error {
	db, _, err := connection.FromConfig(squealx.Config{
		Driver:      s.driver,
		Host:        s.cfg.Host,
		Port:        s.cfg.Port,
		Username:    s.cfg.Username,
		Password:    s.cfg.Password,
		Database:    s.cfg.Database,
		MaxIdleCons: 2,
		MaxOpenCons: 10,
	})
	if err != nil {
		return fmt.Errorf("sql sink: connect: %w", err)
	}
	s.db = db
	_, err = s.db.ExecContext(ctx, createTableSQL(s.driver, s.table))
	if err != nil {
		return fmt.Errorf("sql sink: create table %s: %w", s.table, err)
	}
	return nil
}

func createTableSQL(driver, table string) string {
	if driver == "mysql" {
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (control_id VARCHAR(199) NOT NULL, message_type VARCHAR(64), payload JSON NOT NULL)", table)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (control_id TEXT NOT NULL, message_type TEXT, payload JSONB NOT NULL)", table)
}

// insertSQL builds a multi-row insert with the driver's placeholder style.
func insertSQL(driver, table string, rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (control_id, message_type, payload) VALUES ", table)
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		if driver == "postgres" {
			fmt.Fprintf(&b, "($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3)
		} else {
			b.WriteString("(?, ?, ?)")
		}
	}
	return b.String()
}

func rowArgs(batch []utils.Record) ([]any, error) {
	args := make([]any, 0, len(batch)*3)
	for _, rec := range batch {
		payload, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("sql sink: encode record: %w", err)
		}
		controlID, _ := utils.GetString(rec, "hl7_control_id")
		messageType, _ := utils.GetString(rec, "hl7_message_type")
		args = append(args, controlID, messageType, string(payload))
	}
	return args, nil
}

func (s *SQL) StoreBatch(ctx context.Context, batch []utils.Record) error {
	if len(batch) == 0 {
		return nil
	}
	if s.db == nil {
		return fmt.Errorf("sql sink: Setup was not called")
	}
	args, err := rowArgs(batch)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertSQL(s.driver, s.table, len(batch)), args...); err != nil {
		return fmt.Errorf("sql sink: insert into %s: %w", s.table, err)
	}
	return nil
}

func (s *SQL) StoreSingle(ctx context.Context, rec utils.Record) error {
	return s.StoreBatch(ctx, []utils.Record{rec})
}

func (s *SQL) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ contracts.Loader = (*SQL)(nil)
