package datastore

import (
	"context"

	"github.com/haruo/kaigi/pkg/toolexecutor"
)

// Definitions returns the database tools backed by this store. The same
// definitions serve the MCP server and the gateway's local fallback
// registry.
func (s *Store) Definitions() []toolexecutor.Definition {
	return []toolexecutor.Definition{
		{
			Name: "get_database_schema",
			Description: "Get the complete database schema: table names, column names and types, " +
				"and total row counts. Call this first, before writing any SQL.",
			Parameters: []toolexecutor.Parameter{
				{Name: "query", Type: "string", Description: "Optional table name filter"},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				table, _ := args["query"].(string)
				return s.Schema(ctx, table)
			},
		},
		{
			Name: "execute_sql_query",
			Description: "Execute a read-only SQL query against the database and return a formatted " +
				"result table. Results are limited to 50 rows.",
			Parameters: []toolexecutor.Parameter{
				{Name: "sql", Type: "string", Description: "SQL SELECT statement to run", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				query, _ := args["sql"].(string)
				return s.Query(ctx, query)
			},
		},
	}
}
