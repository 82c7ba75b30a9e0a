package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const maxChainDepth = 10

// ErrorDump is the log-only view of an error. It may contain driver detail and must never
// be written to a response.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Root       string   `json:"root,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	SQL        *SQLDump `json:"sql,omitempty"`
}

// SQLDump carries the Postgres diagnostics of a failed statement.
type SQLDump struct {
	State      string `json:"state"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Dump walks err's chain for logging.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}

	e := err
	for depth := 0; e != nil; depth++ {
		if depth == maxChainDepth {
			d.Chain = append(d.Chain, "...")
			break
		}
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
		d.Root = e.Error()
		e = stdErrors.Unwrap(e)
	}

	d.SQL = sqlDump(err)
	return d
}

// Fields flattens the dump into structured log fields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.Root != "" && d.Root != d.TopMessage {
		fields["error_root"] = d.Root
	}
	if d.SQL != nil {
		fields["sql_state"] = d.SQL.State
		fields["sql_constraint"] = d.SQL.Constraint
		fields["sql_table"] = d.SQL.Table
	}
	return fields
}

func sqlDump(err error) *SQLDump {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return &SQLDump{
			State:      pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return &SQLDump{
			State:      string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
