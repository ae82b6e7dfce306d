package job

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/borgius/n8n-local/internal/clock/system"
	"github.com/borgius/n8n-local/internal/hash/sha256"
	"github.com/borgius/n8n-local/internal/id/uuid"
)

// IDStrategy selects how identifiers are synthesized for records without one.
type IDStrategy string

// Supported identifier strategies.
const (
	// IDRandom yields job_{epochMillis}_{7 base-36 chars}.
	IDRandom IDStrategy = "random"
	// IDContent yields job_ plus 32 hex chars of SHA-256 over
	// site|job_url|title|company, so reinsertion converges on one row.
	IDContent IDStrategy = "content"
)

const (
	randomSuffixLen = 7
	contentIDLen    = 32
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Hasher computes a hex digest over an ordered list of key fields.
type Hasher interface {
	Digest(fields ...string) (string, error)
}

// ShortIDGenerator returns n random base-36 characters.
type ShortIDGenerator interface {
	NewShortID(n int) (string, error)
}

// NormalizerOptions wires a Normalizer. Nil dependencies fall back to the
// system clock, SHA-256 and UUID-backed entropy.
type NormalizerOptions struct {
	Strategy IDStrategy
	Logger   *zap.Logger
	Clock    Clock
	Hasher   Hasher
	ShortIDs ShortIDGenerator
}

// Normalizer maps validated records onto jobs table rows.
type Normalizer struct {
	strategy IDStrategy
	logger   *zap.Logger
	clock    Clock
	hasher   Hasher
	shortIDs ShortIDGenerator
}

// NewNormalizer builds a Normalizer. An empty strategy means IDRandom.
func NewNormalizer(opts NormalizerOptions) (*Normalizer, error) {
	switch opts.Strategy {
	case "":
		opts.Strategy = IDRandom
	case IDRandom, IDContent:
	default:
		return nil, fmt.Errorf("unknown id strategy %q", opts.Strategy)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Hasher == nil {
		opts.Hasher = sha256.New()
	}
	if opts.ShortIDs == nil {
		opts.ShortIDs = uuid.New()
	}
	return &Normalizer{
		strategy: opts.Strategy,
		logger:   opts.Logger,
		clock:    opts.Clock,
		hasher:   opts.Hasher,
		shortIDs: opts.ShortIDs,
	}, nil
}

// EnsureID returns the record's id when it is a non-empty string, otherwise
// one synthesized with the configured strategy.
func (n *Normalizer) EnsureID(rec Record) (string, error) {
	if id, ok := rec.Value("id").(string); ok && id != "" {
		return id, nil
	}
	if n.strategy == IDContent {
		digest, err := n.hasher.Digest(
			deref(rec.String("site")),
			deref(rec.String("jobUrl")),
			deref(rec.String("title")),
			deref(rec.String("company")),
		)
		if err != nil {
			return "", fmt.Errorf("hash content id: %w", err)
		}
		if len(digest) < contentIDLen {
			return "", fmt.Errorf("hash content id: digest too short")
		}
		return "job_" + digest[:contentIDLen], nil
	}
	suffix, err := n.shortIDs.NewShortID(randomSuffixLen)
	if err != nil {
		return "", fmt.Errorf("random id suffix: %w", err)
	}
	return "job_" + strconv.FormatInt(n.clock.Now().UnixMilli(), 10) + "_" + suffix, nil
}

// Normalize maps rec onto a Row. CreatedAt and UpdatedAt stay zero until the
// store fills them.
func (n *Normalizer) Normalize(rec Record) (Row, error) {
	id, err := n.EnsureID(rec)
	if err != nil {
		return Row{}, err
	}
	return Row{
		ID:                  id,
		Site:                rec.String("site"),
		JobURL:              rec.String("jobUrl"),
		JobURLDirect:        rec.String("jobUrlDirect"),
		Title:               rec.String("title"),
		Company:             rec.String("company"),
		Location:            rec.String("location"),
		DatePosted:          n.ParseDate(rec.Value("datePosted")),
		JobType:             rec.String("jobType"),
		SalarySource:        rec.String("salarySource"),
		Interval:            rec.String("interval"),
		MinAmount:           rec.Float("minAmount"),
		MaxAmount:           rec.Float("maxAmount"),
		Currency:            rec.String("currency"),
		IsRemote:            rec.Bool("isRemote"),
		JobLevel:            rec.String("jobLevel"),
		JobFunction:         rec.String("jobFunction"),
		ListingType:         rec.String("listingType"),
		Emails:              rec.String("emails"),
		Description:         rec.String("description"),
		CompanyIndustry:     rec.String("companyIndustry"),
		CompanyURL:          rec.String("companyUrl"),
		CompanyLogo:         rec.String("companyLogo"),
		CompanyURLDirect:    rec.String("companyUrlDirect"),
		CompanyAddresses:    rec.String("companyAddresses"),
		CompanyNumEmployees: rec.String("companyNumEmployees"),
		CompanyRevenue:      rec.String("companyRevenue"),
		CompanyDescription:  rec.String("companyDescription"),
		Skills:              skillsOf(rec),
		ExperienceRange:     rec.String("experienceRange"),
		CompanyRating:       rec.String("companyRating"),
		CompanyReviewsCount: rec.String("companyReviewsCount"),
		VacancyCount:        rec.String("vacancyCount"),
		WorkFromHomeType:    rec.String("workFromHomeType"),
	}, nil
}

// skillsOf reads skills as an array, or as a JSON-encoded array string.
// Anything else is an empty list.
func skillsOf(rec Record) []string {
	if skills := rec.Strings("skills"); skills != nil {
		return skills
	}
	if s, ok := rec.Value("skills").(string); ok {
		var decoded []string
		if err := json.Unmarshal([]byte(s), &decoded); err == nil && decoded != nil {
			return decoded
		}
	}
	return []string{}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
