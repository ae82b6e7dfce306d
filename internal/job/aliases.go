package job

// alias maps a legacy field name onto its canonical camelCase name.
type alias struct {
	legacy    string
	canonical string
}

// aliases is ordered: when several legacy names feed one canonical field the
// first non-null one wins. The canonical name always beats every alias.
var aliases = []alias{
	{"companyName", "company"},
	{"jobTitle", "title"},
	{"salaryPeriod", "interval"},
	{"salaryCurrency", "currency"},

	{"company_name", "company"},
	{"job_title", "title"},
	{"job_summary", "jobSummary"},
	{"job_url", "jobUrl"},
	{"job_url_direct", "jobUrlDirect"},
	{"postal_code", "postalCode"},
	{"date_posted", "datePosted"},
	{"salary_source", "salarySource"},
	{"min_amount", "minAmount"},
	{"max_amount", "maxAmount"},
	{"job_type", "jobType"},
	{"job_level", "jobLevel"},
	{"job_function", "jobFunction"},
	{"listing_type", "listingType"},
	{"is_remote", "isRemote"},
	{"work_from_home_type", "workFromHomeType"},
	{"experience_range", "experienceRange"},
	{"company_industry", "companyIndustry"},
	{"company_url", "companyUrl"},
	{"company_logo", "companyLogo"},
	{"company_url_direct", "companyUrlDirect"},
	{"company_addresses", "companyAddresses"},
	{"company_num_employees", "companyNumEmployees"},
	{"company_revenue", "companyRevenue"},
	{"company_description", "companyDescription"},
	{"company_rating", "companyRating"},
	{"company_reviews_count", "companyReviewsCount"},
	{"posting_status", "postingStatus"},
	{"vacancy_count", "vacancyCount"},
}

var legacyNames = func() map[string]struct{} {
	out := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		out[a.legacy] = struct{}{}
	}
	return out
}()

// resolveAliases returns a copy of raw keyed by canonical names. Legacy keys
// are consumed; they never appear in the result.
func resolveAliases(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		if _, legacy := legacyNames[key]; legacy {
			continue
		}
		out[key] = value
	}
	for _, a := range aliases {
		value, ok := raw[a.legacy]
		if !ok || value == nil {
			continue
		}
		if current, present := out[a.canonical]; present && current != nil {
			continue
		}
		out[a.canonical] = value
	}
	return out
}
