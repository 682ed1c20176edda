package pipeline

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shpitdev/leadfinder/internal/enrich"
	"github.com/shpitdev/leadfinder/pkg/pipeline/core"
	"github.com/shpitdev/leadfinder/pkg/pipeline/redact"
	"github.com/shpitdev/leadfinder/pkg/pipeline/schema"
	"github.com/shpitdev/leadfinder/pkg/pipeline/worker"
)

// Row is one line of the contact table. A business with several direct
// contacts produces one row per contact; the business columns repeat.
type Row struct {
	BusinessName string
	Name         string
	Title        string
	Email        string
	Phone        string
	LinkedIn     string
	Website      string
	Source       string

	BusinessEmail   string
	DirectContacts  string
	ScrapeStatus    string
	// VerifiedWebsite is "Y" when the business name was found on the
	// homepage, "N" otherwise, empty for failed rows.
	VerifiedWebsite string

	AIContact    string
	AITitle      string
	AIReason     string
	AIConfidence string
	LikelyEmail  string
	FallbackUsed string

	Error string
}

// Contract is the stable column contract for Row, in output order.
var Contract = schema.Contract{
	Fields: []schema.Field{
		{Name: "Business Name", Type: "string"},
		{Name: "Name", Type: "string", Nullable: true},
		{Name: "Title", Type: "string", Nullable: true},
		{Name: "Email", Type: "string", Nullable: true},
		{Name: "Phone", Type: "string", Nullable: true},
		{Name: "LinkedIn", Type: "string", Nullable: true},
		{Name: "Website", Type: "string"},
		{Name: "Source", Type: "string", Nullable: true},
		{Name: "Business Email", Type: "string", Nullable: true},
		{Name: "Direct Contacts", Type: "string", Nullable: true},
		{Name: "Scrape Status", Type: "string"},
		{Name: "Verified Website Match", Type: "string", Nullable: true},
		{Name: "AI Contact", Type: "string", Nullable: true},
		{Name: "AI Title", Type: "string", Nullable: true},
		{Name: "AI Reason", Type: "string", Nullable: true},
		{Name: "AI Confidence", Type: "integer", Nullable: true},
		{Name: "Likely Email", Type: "string", Nullable: true},
		{Name: "Fallback Used", Type: "string", Nullable: true},
		{Name: "Error", Type: "string", Nullable: true},
	},
}

// Header returns the stable CSV header for Row.
func Header() []string {
	return Contract.Names()
}

// Values returns the row in Header order.
func (r Row) Values() []string {
	return []string{
		r.BusinessName,
		r.Name,
		r.Title,
		r.Email,
		r.Phone,
		r.LinkedIn,
		r.Website,
		r.Source,
		r.BusinessEmail,
		r.DirectContacts,
		r.ScrapeStatus,
		r.VerifiedWebsite,
		r.AIContact,
		r.AITitle,
		r.AIReason,
		r.AIConfidence,
		r.LikelyEmail,
		r.FallbackUsed,
		r.Error,
	}
}

func rowFromValues(get func(col string) string) Row {
	return Row{
		BusinessName:    get("Business Name"),
		Name:            get("Name"),
		Title:           get("Title"),
		Email:           get("Email"),
		Phone:           get("Phone"),
		LinkedIn:        get("LinkedIn"),
		Website:         get("Website"),
		Source:          get("Source"),
		BusinessEmail:   get("Business Email"),
		DirectContacts:  get("Direct Contacts"),
		ScrapeStatus:    get("Scrape Status"),
		VerifiedWebsite: get("Verified Website Match"),
		AIContact:       get("AI Contact"),
		AITitle:         get("AI Title"),
		AIReason:        get("AI Reason"),
		AIConfidence:    get("AI Confidence"),
		LikelyEmail:     get("Likely Email"),
		FallbackUsed:    get("Fallback Used"),
		Error:           get("Error"),
	}
}

// Key identifies the business a row belongs to across runs.
type Key struct {
	BusinessName string
	Website      string
}

func (r Row) Key() Key {
	return Key{BusinessName: strings.TrimSpace(r.BusinessName), Website: strings.TrimSpace(r.Website)}
}

// BusinessKey is the Key a business will produce before enrichment.
func BusinessKey(b enrich.Business) Key {
	return Key{BusinessName: strings.TrimSpace(b.Name), Website: strings.TrimSpace(b.Website)}
}

// LinkedInSearchURL builds a search-engine query for the person's LinkedIn
// profile. Empty when name is empty.
func LinkedInSearchURL(name, business string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	q := `"` + name + `"`
	if b := strings.TrimSpace(business); b != "" {
		q += ` "` + b + `"`
	}
	q += " site:linkedin.com/in"
	return "https://www.google.com/search?q=" + url.QueryEscape(q)
}

// BuildRows converts one enrichment result into contact-table rows.
func BuildRows(b enrich.Business, res enrich.Result) []Row {
	base := Row{
		BusinessName:    strings.TrimSpace(b.Name),
		Phone:           strings.TrimSpace(b.Phone),
		Website:         strings.TrimSpace(b.Website),
		Source:          res.SourceURL,
		BusinessEmail:   res.BusinessEmail,
		DirectContacts:  res.DirectContacts,
		ScrapeStatus:    res.Status,
		VerifiedWebsite: yesNo(res.WebsiteVerified),
	}
	if s := res.Suggestion; s != nil {
		base.AIContact = s.Name
		base.AITitle = s.Title
		base.AIReason = s.Reason
		if s.Confidence > 0 {
			base.AIConfidence = strconv.Itoa(s.Confidence)
		}
		base.LikelyEmail = s.LikelyEmail
		base.FallbackUsed = yesNo(s.FallbackUsed)
	}

	if len(res.Contacts) == 0 {
		r := base
		r.Email = res.BusinessEmail
		return []Row{r}
	}

	rows := make([]Row, 0, len(res.Contacts))
	for _, c := range res.Contacts {
		r := base
		r.Name = c.Name
		r.Title = c.Role
		r.Email = c.Email
		if c.Phone != "" {
			r.Phone = c.Phone
		}
		if c.Email == "" && c.Phone == "" {
			r.LinkedIn = LinkedInSearchURL(c.Name, b.Name)
		}
		rows = append(rows, r)
	}
	return rows
}

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

// ErrorRow records a business whose enrichment failed outright.
func ErrorRow(b enrich.Business, err error) Row {
	return Row{
		BusinessName:   strings.TrimSpace(b.Name),
		Phone:          strings.TrimSpace(b.Phone),
		Website:        strings.TrimSpace(b.Website),
		DirectContacts: enrich.NoDirectContact,
		ScrapeStatus:   enrich.StatusError,
		Error:          redact.Secrets(err.Error()),
	}
}

type Options struct {
	Workers        int
	MaxRetries     int
	RequestTimeout time.Duration
	RateLimitRPS   float64
	FailFast       bool
}

// EnrichBusinesses runs one enricher per worker over all businesses and returns
// rows in input order.
//
// Per-business failures are recorded as rows and do not fail the full run.
func EnrichBusinesses(
	ctx context.Context,
	businesses []enrich.Business,
	newEnricher func() enrich.Enricher,
	onResult func(b enrich.Business, rows []Row),
	opts Options,
) ([]Row, error) {
	policy := worker.FailurePolicyPartialOutput
	if opts.FailFast {
		policy = worker.FailurePolicyFailFast
	}

	newProcessor := func() core.ProcessFunc[enrich.Business, enrich.Result] {
		e := newEnricher()
		return e.Enrich
	}
	var callback func(worker.Result[enrich.Business, enrich.Result]) error
	if onResult != nil {
		callback = func(r worker.Result[enrich.Business, enrich.Result]) error {
			onResult(r.Input, rowsFor(r))
			return nil
		}
	}

	out, err := worker.ProcessAllPerWorker(ctx, businesses, newProcessor, callback, worker.Options{
		Workers:           opts.Workers,
		MaxRetries:        opts.MaxRetries,
		RequestTimeout:    opts.RequestTimeout,
		RateLimitRPS:      opts.RateLimitRPS,
		FailurePolicy:     policy,
		BackoffInitial:    200 * time.Millisecond,
		BackoffMax:        2 * time.Second,
		BackoffJitterFrac: 0.2,
	})
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, item := range out {
		rows = append(rows, rowsFor(item)...)
	}
	return rows, nil
}

func rowsFor(item worker.Result[enrich.Business, enrich.Result]) []Row {
	if item.Err != nil {
		return []Row{ErrorRow(item.Input, item.Err)}
	}
	return BuildRows(item.Input, item.Output)
}
