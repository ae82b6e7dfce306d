package job

import (
	"encoding/json"
	"time"
)

// Row is one persisted listing in the jobs table. Nil pointers are NULL.
type Row struct {
	ID                  string     `json:"id"`
	Site                *string    `json:"site"`
	JobURL              *string    `json:"job_url"`
	JobURLDirect        *string    `json:"job_url_direct"`
	Title               *string    `json:"title"`
	Company             *string    `json:"company"`
	Location            *string    `json:"location"`
	DatePosted          *time.Time `json:"date_posted"`
	JobType             *string    `json:"job_type"`
	SalarySource        *string    `json:"salary_source"`
	Interval            *string    `json:"interval"`
	MinAmount           *float64   `json:"min_amount"`
	MaxAmount           *float64   `json:"max_amount"`
	Currency            *string    `json:"currency"`
	IsRemote            *bool      `json:"is_remote"`
	JobLevel            *string    `json:"job_level"`
	JobFunction         *string    `json:"job_function"`
	ListingType         *string    `json:"listing_type"`
	Emails              *string    `json:"emails"`
	Description         *string    `json:"description"`
	CompanyIndustry     *string    `json:"company_industry"`
	CompanyURL          *string    `json:"company_url"`
	CompanyLogo         *string    `json:"company_logo"`
	CompanyURLDirect    *string    `json:"company_url_direct"`
	CompanyAddresses    *string    `json:"company_addresses"`
	CompanyNumEmployees *string    `json:"company_num_employees"`
	CompanyRevenue      *string    `json:"company_revenue"`
	CompanyDescription  *string    `json:"company_description"`
	Skills              []string   `json:"skills"`
	ExperienceRange     *string    `json:"experience_range"`
	CompanyRating       *string    `json:"company_rating"`
	CompanyReviewsCount *string    `json:"company_reviews_count"`
	VacancyCount        *string    `json:"vacancy_count"`
	WorkFromHomeType    *string    `json:"work_from_home_type"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// SkillsJSON encodes Skills for the text column. A nil slice encodes as [].
func (r Row) SkillsJSON() string {
	if len(r.Skills) == 0 {
		return "[]"
	}
	b, err := json.Marshal(r.Skills)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// DecodeSkills parses the skills column. Malformed or empty text yields an
// empty list.
func DecodeSkills(text string) []string {
	var skills []string
	if err := json.Unmarshal([]byte(text), &skills); err != nil || skills == nil {
		return []string{}
	}
	return skills
}
