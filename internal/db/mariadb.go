package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

type DB struct {
	conn *sql.DB
}

// DSN builds the go-sql-driver/mysql data source name.
func DSN(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true",
		user, password, host, port, dbname)
}

func New(host string, port int, user, password, dbname string) (*DB, error) {
	conn, err := sql.Open("mysql", DSN(host, port, user, password, dbname))
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

func (d *DB) DB() *sql.DB {
	return d.conn
}

func (d *DB) Close() error {
	return d.conn.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS utterances (
	run_id       CHAR(36)     NOT NULL,
	utt_id       VARCHAR(255) NOT NULL,
	file_path    VARCHAR(1024) NOT NULL,
	sample_rate  INT          NOT NULL DEFAULT 0,
	speaker_id   VARCHAR(255) NOT NULL DEFAULT '',
	gender       CHAR(1)      NOT NULL DEFAULT '',
	category     VARCHAR(64)  NOT NULL DEFAULT '',
	duration_sec DOUBLE       NOT NULL DEFAULT 0,
	split        VARCHAR(16)  NOT NULL,
	kind         VARCHAR(16)  NOT NULL,
	file_hash    CHAR(32)     NOT NULL DEFAULT '',
	file_size    BIGINT       NOT NULL DEFAULT 0,
	created_at   TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (run_id, kind, utt_id),
	KEY idx_hash (file_hash),
	KEY idx_speaker (speaker_id)
) DEFAULT CHARSET=utf8mb4`

// EnsureSchema creates the catalog table when it does not exist.
func (d *DB) EnsureSchema(ctx context.Context) error {
	_, err := d.conn.ExecContext(ctx, schema)
	return err
}

// CountRun returns how many utterances a run exported.
func (d *DB) CountRun(ctx context.Context, runID string) (int64, error) {
	var n int64
	err := d.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM utterances WHERE run_id = ?", runID).Scan(&n)
	return n, err
}
