package postgres

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// columnTypes maps each non-key column to its DDL type.
var columnTypes = map[string]string{
	"site":                  "TEXT",
	"job_url":               "TEXT",
	"job_url_direct":        "TEXT",
	"title":                 "TEXT",
	"company":               "TEXT",
	"location":              "TEXT",
	"date_posted":           "TIMESTAMPTZ",
	"job_type":              "TEXT",
	"salary_source":         "TEXT",
	"interval":              "TEXT",
	"min_amount":            "NUMERIC",
	"max_amount":            "NUMERIC",
	"currency":              "TEXT",
	"is_remote":             "BOOLEAN",
	"job_level":             "TEXT",
	"job_function":          "TEXT",
	"listing_type":          "TEXT",
	"emails":                "TEXT",
	"description":           "TEXT",
	"company_industry":      "TEXT",
	"company_url":           "TEXT",
	"company_logo":          "TEXT",
	"company_url_direct":    "TEXT",
	"company_addresses":     "TEXT",
	"company_num_employees": "TEXT",
	"company_revenue":       "TEXT",
	"company_description":   "TEXT",
	"skills":                "TEXT NOT NULL DEFAULT '[]'",
	"experience_range":      "TEXT",
	"company_rating":        "TEXT",
	"company_reviews_count": "TEXT",
	"vacancy_count":         "TEXT",
	"work_from_home_type":   "TEXT",
	"created_at":            "TIMESTAMPTZ NOT NULL DEFAULT now()",
	"updated_at":            "TIMESTAMPTZ NOT NULL DEFAULT now()",
}

// schemaStatements returns the idempotent DDL for the jobs table.
func schemaStatements(schema, table string) []string {
	qualified := schema + "." + table

	defs := []string{`"id" TEXT PRIMARY KEY`}
	adds := make([]string, 0, len(jobColumns)+1)
	for _, c := range append(append([]string(nil), jobColumns[1:]...), "created_at", "updated_at") {
		defs = append(defs, fmt.Sprintf(`"%s" %s`, c, columnTypes[c]))
		adds = append(adds, fmt.Sprintf(`ADD COLUMN IF NOT EXISTS "%s" %s`, c, columnTypes[c]))
	}

	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", qualified, strings.Join(defs, ",\n\t")),
		fmt.Sprintf("ALTER TABLE %s\n\t%s", qualified, strings.Join(adds, ",\n\t")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_site_idx ON %s ("site")`, table, qualified),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_updated_at_idx ON %s ("updated_at" DESC)`, table, qualified),
	}
}

// EnsureSchema creates the schema, table and indexes when missing and adds
// any columns an older table lacks.
func (s *JobStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("job store is not configured")
	}
	for _, stmt := range schemaStatements(s.schema, s.table) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	s.logger.Info("jobs table ready", zap.String("table", s.qualified))
	return nil
}
