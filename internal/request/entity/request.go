package entity

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DateLayout is the text form of every date written to the record store.
const DateLayout = "2006-01-02"

// TicketPrefix precedes the zero padded sequence of every ticket id.
const TicketPrefix = "GU"

var ticketPattern = regexp.MustCompile(`GU(\d+)`)

// Request is one communications request, one row of the record store.
type Request struct {
	TicketID     string `json:"ticket_id"`
	ProjectGrant string `json:"project_grant"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	RequestType  string `json:"request_type"`

	SupportTypes    []string `json:"support_types"`
	PrimaryPurposes []string `json:"primary_purposes"`
	TargetAudiences []string `json:"target_audiences"`
	AudienceAction  string   `json:"audience_action"`

	RequestedDueDate *time.Time `json:"requested_due_date"`
	DriverDeadline   string     `json:"driver_deadline"`
	GrantDeliverable string     `json:"grant_deliverable"` // Yes/No/Unsure
	PriorityLevel    string     `json:"priority_level"`

	BackgroundLinks []string `json:"background_links"`
	DraftLinks      []string `json:"draft_links"`
	KeyPoints       string   `json:"key_points"`
	SubjectMatter   string   `json:"subject_matter"`

	ShareExternally   string   `json:"share_externally"`
	SensitiveContent  []string `json:"sensitive_content"`
	PermissionSecured string   `json:"permission_secured"`

	EstimatedLength string   `json:"estimated_length"`
	DesignSupport   string   `json:"design_support"`
	LiveLocations   []string `json:"live_locations"`

	SubmitDate  *time.Time `json:"submit_date"`
	SummaryLink string     `json:"summary_link"`

	Status        string     `json:"status"`
	StatusMessage string     `json:"status_message"`
	OutputLinks   []string   `json:"output_links"`
	ClosedDate    *time.Time `json:"closed_date"`

	// Extra holds sheet columns this model does not know about so that a
	// full rewrite does not drop them.
	Extra map[string]string `json:"extra,omitempty"`
}

// FormatTicket renders a ticket id from its sequence number.
func FormatTicket(seq int) string {
	return fmt.Sprintf("%s%04d", TicketPrefix, seq)
}

// TicketSequence extracts the numeric suffix of a ticket id.
func TicketSequence(ticketID string) (int, bool) {
	m := ticketPattern.FindStringSubmatch(ticketID)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// NextTicket returns max(existing sequence)+1, or GU0001 for an empty table.
func NextTicket(requests []Request) string {
	max := 0
	for _, r := range requests {
		if n, ok := TicketSequence(r.TicketID); ok && n > max {
			max = n
		}
	}
	return FormatTicket(max + 1)
}

// FormatDate renders a nullable date, empty when unset.
func FormatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// Date truncates t to a calendar day in its own location.
func Date(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return &d
}

// Clone returns a deep copy.
func (r Request) Clone() Request {
	c := r
	c.SupportTypes = cloneStrings(r.SupportTypes)
	c.PrimaryPurposes = cloneStrings(r.PrimaryPurposes)
	c.TargetAudiences = cloneStrings(r.TargetAudiences)
	c.BackgroundLinks = cloneStrings(r.BackgroundLinks)
	c.DraftLinks = cloneStrings(r.DraftLinks)
	c.SensitiveContent = cloneStrings(r.SensitiveContent)
	c.LiveLocations = cloneStrings(r.LiveLocations)
	c.OutputLinks = cloneStrings(r.OutputLinks)
	c.RequestedDueDate = cloneTime(r.RequestedDueDate)
	c.SubmitDate = cloneTime(r.SubmitDate)
	c.ClosedDate = cloneTime(r.ClosedDate)
	if r.Extra != nil {
		c.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
