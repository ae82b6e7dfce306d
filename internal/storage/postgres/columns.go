package postgres

import (
	"fmt"
	"strings"

	"github.com/borgius/n8n-local/internal/job"
)

// jobColumns is the write order of the jobs table, excluding the timestamps
// the database maintains.
var jobColumns = []string{
	"id",
	"site",
	"job_url",
	"job_url_direct",
	"title",
	"company",
	"location",
	"date_posted",
	"job_type",
	"salary_source",
	"interval",
	"min_amount",
	"max_amount",
	"currency",
	"is_remote",
	"job_level",
	"job_function",
	"listing_type",
	"emails",
	"description",
	"company_industry",
	"company_url",
	"company_logo",
	"company_url_direct",
	"company_addresses",
	"company_num_employees",
	"company_revenue",
	"company_description",
	"skills",
	"experience_range",
	"company_rating",
	"company_reviews_count",
	"vacancy_count",
	"work_from_home_type",
}

// rowArgs returns the bind arguments for row in jobColumns order.
func rowArgs(row job.Row) []any {
	return []any{
		row.ID,
		row.Site,
		row.JobURL,
		row.JobURLDirect,
		row.Title,
		row.Company,
		row.Location,
		row.DatePosted,
		row.JobType,
		row.SalarySource,
		row.Interval,
		row.MinAmount,
		row.MaxAmount,
		row.Currency,
		row.IsRemote,
		row.JobLevel,
		row.JobFunction,
		row.ListingType,
		row.Emails,
		row.Description,
		row.CompanyIndustry,
		row.CompanyURL,
		row.CompanyLogo,
		row.CompanyURLDirect,
		row.CompanyAddresses,
		row.CompanyNumEmployees,
		row.CompanyRevenue,
		row.CompanyDescription,
		row.SkillsJSON(),
		row.ExperienceRange,
		row.CompanyRating,
		row.CompanyReviewsCount,
		row.VacancyCount,
		row.WorkFromHomeType,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

// scanJob reads a row selected with selectList.
func scanJob(s scanner) (job.Row, error) {
	var (
		row    job.Row
		skills *string
	)
	err := s.Scan(
		&row.ID,
		&row.Site,
		&row.JobURL,
		&row.JobURLDirect,
		&row.Title,
		&row.Company,
		&row.Location,
		&row.DatePosted,
		&row.JobType,
		&row.SalarySource,
		&row.Interval,
		&row.MinAmount,
		&row.MaxAmount,
		&row.Currency,
		&row.IsRemote,
		&row.JobLevel,
		&row.JobFunction,
		&row.ListingType,
		&row.Emails,
		&row.Description,
		&row.CompanyIndustry,
		&row.CompanyURL,
		&row.CompanyLogo,
		&row.CompanyURLDirect,
		&row.CompanyAddresses,
		&row.CompanyNumEmployees,
		&row.CompanyRevenue,
		&row.CompanyDescription,
		&skills,
		&row.ExperienceRange,
		&row.CompanyRating,
		&row.CompanyReviewsCount,
		&row.VacancyCount,
		&row.WorkFromHomeType,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	if err != nil {
		return job.Row{}, err
	}
	if skills != nil {
		row.Skills = job.DecodeSkills(*skills)
	} else {
		row.Skills = []string{}
	}
	return row, nil
}

func quoteColumns(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = `"` + c + `"`
	}
	return out
}

// selectList is every column in scanJob order.
func selectList() string {
	return strings.Join(quoteColumns(append(append([]string(nil), jobColumns...), "created_at", "updated_at")), ", ")
}

// buildUpsert renders INSERT ... ON CONFLICT (id) DO UPDATE for table. Every
// non-key column is overwritten and updated_at advances.
func buildUpsert(table string) string {
	quoted := quoteColumns(jobColumns)
	placeholders := make([]string, len(jobColumns))
	for i := range jobColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	updates := make([]string, 0, len(jobColumns))
	for _, c := range quoted[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	updates = append(updates, `"updated_at" = now()`)

	return fmt.Sprintf(`INSERT INTO %s (%s)
VALUES (%s)
ON CONFLICT ("id") DO UPDATE SET
	%s
RETURNING "created_at", "updated_at"`,
		table,
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ",\n\t"),
	)
}
