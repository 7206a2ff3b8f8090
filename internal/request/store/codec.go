package store

import (
	"sort"
	"strings"
	"time"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/entity"
)

// Record store column names.
const (
	ColTicketID          = "Ticket ID"
	ColProjectGrant      = "Project/Grant"
	ColName              = "Name"
	ColEmail             = "Email Address"
	ColRequestType       = "Request Type"
	ColSupportTypes      = "Type of Support Needed"
	ColPrimaryPurposes   = "Primary Purpose"
	ColTargetAudiences   = "Target Audience"
	ColAudienceAction    = "Audience Action"
	ColRequestedDueDate  = "Requested Due Date"
	ColDriverDeadline    = "Driver Deadline"
	ColGrantDeliverable  = "Tie to Grant Deliverable"
	ColPriorityLevel     = "Priority Level"
	ColBackgroundShare   = "Background Share"
	ColDraftCopy         = "Draft Copy"
	ColKeyPoints         = "Key Points"
	ColSubjectMatter     = "Subject Matter"
	ColShareExternally   = "Share Externally"
	ColSensitiveContent  = "Information Include"
	ColPermissionSecured = "Permission Secure"
	ColEstimatedLength   = "Estimated Length"
	ColDesignSupport     = "Level of Design Support"
	ColLive              = "Live"
	ColSubmitDate        = "Submit Date"
	ColSummaryLink       = "Request PDF Link"
	ColStatus            = "Status"
	ColStatusMessage     = "Status Message"
	ColOutputLinks       = "Output Links"
	ColClosedDate        = "Closed Date"
)

// Columns is the header row, in write order.
var Columns = []string{
	ColTicketID, ColProjectGrant, ColName, ColEmail, ColRequestType,
	ColSupportTypes, ColPrimaryPurposes, ColTargetAudiences, ColAudienceAction,
	ColRequestedDueDate, ColDriverDeadline, ColGrantDeliverable, ColPriorityLevel,
	ColBackgroundShare, ColDraftCopy, ColKeyPoints, ColSubjectMatter,
	ColShareExternally, ColSensitiveContent, ColPermissionSecured,
	ColEstimatedLength, ColDesignSupport, ColLive, ColSubmitDate, ColSummaryLink,
	ColStatus, ColStatusMessage, ColOutputLinks, ColClosedDate,
}

// submitDateHeaders are the spellings legacy sheets used for the submission
// timestamp, in lookup order.
var submitDateHeaders = []string{"Submit Date", "Submit date", "submit_date", "SubmitDate"}

var dateLayouts = []string{
	entity.DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"1/2/2006",
	"01/02/2006",
	"1/2/2006 15:04:05",
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t
		}
	}
	return nil
}

var knownColumns = func() map[string]bool {
	m := make(map[string]bool, len(Columns)+len(submitDateHeaders))
	for _, c := range Columns {
		m[c] = true
	}
	for _, c := range submitDateHeaders {
		m[c] = true
	}
	return m
}()

// Header returns the header row for rows: the known columns followed by any
// extra columns carried by the rows, sorted.
func Header(rows []entity.Request) []string {
	extra := map[string]bool{}
	for _, r := range rows {
		for k := range r.Extra {
			if !knownColumns[k] {
				extra[k] = true
			}
		}
	}
	header := append([]string{}, Columns...)
	names := make([]string, 0, len(extra))
	for k := range extra {
		names = append(names, k)
	}
	sort.Strings(names)
	return append(header, names...)
}

// EncodeRow renders r as cells aligned with header. Dates are YYYY-MM-DD
// and unset values are empty strings.
func EncodeRow(header []string, r entity.Request) []string {
	values := map[string]string{
		ColTicketID:          r.TicketID,
		ColProjectGrant:      r.ProjectGrant,
		ColName:              r.Name,
		ColEmail:             r.Email,
		ColRequestType:       r.RequestType,
		ColSupportTypes:      entity.JoinList(r.SupportTypes),
		ColPrimaryPurposes:   entity.JoinList(r.PrimaryPurposes),
		ColTargetAudiences:   entity.JoinList(r.TargetAudiences),
		ColAudienceAction:    r.AudienceAction,
		ColRequestedDueDate:  entity.FormatDate(r.RequestedDueDate),
		ColDriverDeadline:    r.DriverDeadline,
		ColGrantDeliverable:  r.GrantDeliverable,
		ColPriorityLevel:     r.PriorityLevel,
		ColBackgroundShare:   entity.JoinList(r.BackgroundLinks),
		ColDraftCopy:         entity.JoinList(r.DraftLinks),
		ColKeyPoints:         r.KeyPoints,
		ColSubjectMatter:     r.SubjectMatter,
		ColShareExternally:   r.ShareExternally,
		ColSensitiveContent:  entity.JoinList(r.SensitiveContent),
		ColPermissionSecured: r.PermissionSecured,
		ColEstimatedLength:   r.EstimatedLength,
		ColDesignSupport:     r.DesignSupport,
		ColLive:              entity.JoinList(r.LiveLocations),
		ColSubmitDate:        entity.FormatDate(r.SubmitDate),
		ColSummaryLink:       r.SummaryLink,
		ColStatus:            r.Status,
		ColStatusMessage:     r.StatusMessage,
		ColOutputLinks:       entity.JoinList(r.OutputLinks),
		ColClosedDate:        entity.FormatDate(r.ClosedDate),
	}
	cells := make([]string, len(header))
	for i, h := range header {
		if v, ok := values[h]; ok {
			cells[i] = v
			continue
		}
		cells[i] = r.Extra[h]
	}
	return cells
}

// DecodeRow maps one sheet row onto a Request. known holds option labels
// used to split multi-value cells; link cells are split on the separator.
func DecodeRow(header, cells []string, known []string) entity.Request {
	get := make(map[string]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if i < len(cells) {
			get[h] = cells[i]
		} else {
			get[h] = ""
		}
	}

	r := entity.Request{
		TicketID:          strings.TrimSpace(get[ColTicketID]),
		ProjectGrant:      get[ColProjectGrant],
		Name:              get[ColName],
		Email:             get[ColEmail],
		RequestType:       get[ColRequestType],
		SupportTypes:      entity.SplitList(get[ColSupportTypes], known),
		PrimaryPurposes:   entity.SplitList(get[ColPrimaryPurposes], known),
		TargetAudiences:   entity.SplitList(get[ColTargetAudiences], known),
		AudienceAction:    get[ColAudienceAction],
		RequestedDueDate:  parseDate(get[ColRequestedDueDate]),
		DriverDeadline:    get[ColDriverDeadline],
		GrantDeliverable:  get[ColGrantDeliverable],
		PriorityLevel:     get[ColPriorityLevel],
		BackgroundLinks:   entity.SplitList(get[ColBackgroundShare], nil),
		DraftLinks:        entity.SplitList(get[ColDraftCopy], nil),
		KeyPoints:         get[ColKeyPoints],
		SubjectMatter:     get[ColSubjectMatter],
		ShareExternally:   get[ColShareExternally],
		SensitiveContent:  entity.SplitList(get[ColSensitiveContent], known),
		PermissionSecured: get[ColPermissionSecured],
		EstimatedLength:   get[ColEstimatedLength],
		DesignSupport:     get[ColDesignSupport],
		LiveLocations:     entity.SplitList(get[ColLive], known),
		SummaryLink:       get[ColSummaryLink],
		Status:            get[ColStatus],
		StatusMessage:     get[ColStatusMessage],
		OutputLinks:       entity.SplitList(get[ColOutputLinks], nil),
		ClosedDate:        parseDate(get[ColClosedDate]),
	}

	for _, h := range submitDateHeaders {
		if v, ok := get[h]; ok {
			r.SubmitDate = parseDate(v)
			break
		}
	}

	for h, v := range get {
		if knownColumns[h] {
			continue
		}
		if r.Extra == nil {
			r.Extra = map[string]string{}
		}
		r.Extra[h] = v
	}
	return r
}
