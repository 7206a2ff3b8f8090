package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/entity"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/events"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/notify"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/relay"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/summary"
	"go.uber.org/zap"
)

var emailPattern = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)

// SubmitForm is a requester submission. Each *Other field is the free text
// that replaces an "Other" selection in the field before it.
type SubmitForm struct {
	ProjectGrant         string   `json:"project_grant"`
	ProjectGrantOther    string   `json:"project_grant_other"`
	Name                 string   `json:"name"`
	Email                string   `json:"email"`
	RequestType          string   `json:"request_type"`
	RequestTypeOther     string   `json:"request_type_other"`
	SupportTypes         []string `json:"support_types"`
	SupportTypesOther    string   `json:"support_types_other"`
	PrimaryPurposes      []string `json:"primary_purposes"`
	PrimaryPurposesOther string   `json:"primary_purposes_other"`
	TargetAudiences      []string `json:"target_audiences"`
	TargetAudiencesOther string   `json:"target_audiences_other"`
	AudienceAction       string   `json:"audience_action"`
	RequestedDueDate     string   `json:"requested_due_date"`
	DriverDeadline       string   `json:"driver_deadline"`
	GrantDeliverable     string   `json:"grant_deliverable"`
	PriorityLevel        string   `json:"priority_level"`
	KeyPoints            string   `json:"key_points"`
	SubjectMatter        string   `json:"subject_matter"`
	ShareExternally      string   `json:"share_externally"`
	SensitiveContent     []string `json:"sensitive_content"`
	PermissionSecured    string   `json:"permission_secured"`
	EstimatedLength      string   `json:"estimated_length"`
	DesignSupport        string   `json:"design_support"`
	LiveLocations        []string `json:"live_locations"`
	LiveOther            string   `json:"live_other"`
}

// Attachments are the optional files of a submission.
type Attachments struct {
	Background []File
	Drafts     []File
}

// normalize trims every value and applies the "Other" replacements.
func (f SubmitForm) normalize() SubmitForm {
	n := f
	n.Name = strings.TrimSpace(f.Name)
	n.Email = strings.TrimSpace(f.Email)
	n.ProjectGrant = entity.ExpandOther(strings.TrimSpace(f.ProjectGrant), f.ProjectGrantOther)
	n.RequestType = entity.ExpandOther(strings.TrimSpace(f.RequestType), f.RequestTypeOther)
	n.SupportTypes = entity.ExpandOtherList(trimAll(f.SupportTypes), f.SupportTypesOther)
	n.PrimaryPurposes = entity.ExpandOtherList(trimAll(f.PrimaryPurposes), f.PrimaryPurposesOther)
	n.TargetAudiences = entity.ExpandOtherList(trimAll(f.TargetAudiences), f.TargetAudiencesOther)
	n.LiveLocations = entity.ExpandOtherList(trimAll(f.LiveLocations), f.LiveOther)
	n.SensitiveContent = trimAll(f.SensitiveContent)
	n.AudienceAction = strings.TrimSpace(f.AudienceAction)
	n.RequestedDueDate = strings.TrimSpace(f.RequestedDueDate)
	n.DriverDeadline = strings.TrimSpace(f.DriverDeadline)
	n.GrantDeliverable = strings.TrimSpace(f.GrantDeliverable)
	n.PriorityLevel = strings.TrimSpace(f.PriorityLevel)
	n.KeyPoints = strings.TrimSpace(f.KeyPoints)
	n.SubjectMatter = strings.TrimSpace(f.SubjectMatter)
	n.ShareExternally = strings.TrimSpace(f.ShareExternally)
	n.PermissionSecured = strings.TrimSpace(f.PermissionSecured)
	n.EstimatedLength = strings.TrimSpace(f.EstimatedLength)
	n.DesignSupport = strings.TrimSpace(f.DesignSupport)
	return n
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// validate checks a normalized form and returns the due date.
func (f SubmitForm) validate() (*time.Time, []string) {
	var errs []string
	required := func(ok bool, label string) {
		if !ok {
			errs = append(errs, label+" is required.")
		}
	}

	required(f.Name != "", "Name")
	required(f.Email != "", "Email Address")
	if f.Email != "" && !emailPattern.MatchString(f.Email) {
		errs = append(errs, "Email Address is not a valid email address.")
	}
	required(f.ProjectGrant != "", "Project/Grant")
	required(f.RequestType != "", "Request Type")
	required(len(f.SupportTypes) > 0, "Type of Support Needed")
	required(len(f.PrimaryPurposes) > 0, "Primary Purpose")
	required(len(f.TargetAudiences) > 0, "Target Audience")
	required(f.AudienceAction != "", "Audience Action")

	var due *time.Time
	if f.RequestedDueDate == "" {
		required(false, "Requested Due Date")
	} else if t, err := time.ParseInLocation(entity.DateLayout, f.RequestedDueDate, time.Local); err != nil {
		errs = append(errs, "Requested Due Date must be a date (YYYY-MM-DD).")
	} else {
		due = &t
	}

	required(f.DriverDeadline != "", "Driver Deadline")
	required(f.GrantDeliverable != "", "Tie to Grant Deliverable")
	required(f.PriorityLevel != "", "Priority Level")
	required(f.KeyPoints != "", "Key Points")
	required(f.SubjectMatter != "", "Subject Matter")
	required(f.ShareExternally != "", "Share Externally")
	required(len(f.SensitiveContent) > 0, "Information Include")
	required(f.PermissionSecured != "", "Permission Secure")
	required(f.EstimatedLength != "", "Estimated Length")
	required(f.DesignSupport != "", "Level of Design Support")
	required(len(f.LiveLocations) > 0, "Live")
	if entity.Contains(f.LiveLocations, entity.OtherChoice) && strings.TrimSpace(f.LiveOther) == "" {
		errs = append(errs, "Please specify where it will live when 'Other' is selected.")
	}
	return due, errs
}

// Create validates a submission, stores its files and summary, appends the
// row and notifies coordinators and the requester.
func (s *RequestService) Create(ctx context.Context, form SubmitForm, files Attachments) (*entity.Request, *Outcome, error) {
	form = form.normalize()
	due, errs := form.validate()
	if len(errs) > 0 {
		return nil, nil, &ValidationError{Messages: errs}
	}

	s.mu.Lock()
	req, outcome, err := s.create(ctx, form, due, files)
	s.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	s.publish(events.TypeRequestCreated, events.RequestChange{Ticket: req.TicketID, Status: req.Status})
	outcome.Deliveries = s.dispatch(ctx, s.submissionIntents(*req))
	return req, outcome, nil
}

func (s *RequestService) create(ctx context.Context, form SubmitForm, due *time.Time, files Attachments) (*entity.Request, *Outcome, error) {
	rows, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	now := s.now()
	r := entity.Request{
		TicketID:          entity.NextTicket(rows),
		ProjectGrant:      form.ProjectGrant,
		Name:              form.Name,
		Email:             form.Email,
		RequestType:       form.RequestType,
		SupportTypes:      form.SupportTypes,
		PrimaryPurposes:   form.PrimaryPurposes,
		TargetAudiences:   form.TargetAudiences,
		AudienceAction:    form.AudienceAction,
		RequestedDueDate:  due,
		DriverDeadline:    form.DriverDeadline,
		GrantDeliverable:  form.GrantDeliverable,
		PriorityLevel:     form.PriorityLevel,
		KeyPoints:         form.KeyPoints,
		SubjectMatter:     form.SubjectMatter,
		ShareExternally:   form.ShareExternally,
		SensitiveContent:  form.SensitiveContent,
		PermissionSecured: form.PermissionSecured,
		EstimatedLength:   form.EstimatedLength,
		DesignSupport:     form.DesignSupport,
		LiveLocations:     form.LiveLocations,
		SubmitDate:        entity.Date(now),
		Status:            entity.StatusSubmitted,
	}

	outcome := &Outcome{}
	for _, part := range []struct {
		dest  relay.Destination
		files []File
		links *[]string
	}{
		{relay.DestBackground, files.Background, &r.BackgroundLinks},
		{relay.DestDraft, files.Drafts, &r.DraftLinks},
	} {
		dest := part.dest
		links, failures := s.upload(ctx, part.files, dest, func(f File) string {
			return relay.AttachmentName(r.TicketID, dest, r.Name, now, f.Name)
		})
		*part.links = links
		outcome.UploadFailures = append(outcome.UploadFailures, failures...)
	}

	link, err := s.storeSummary(ctx, r, now)
	if err != nil {
		s.logger.Warn("Summary document not stored", zap.String("ticket", r.TicketID), zap.Error(err))
		outcome.SummaryError = err.Error()
	}
	r.SummaryLink = link

	rows = append(rows, r)
	if err := s.store.WriteAll(ctx, rows); err != nil {
		return nil, nil, fmt.Errorf("create request %s: %w", r.TicketID, err)
	}
	s.invalidate(ctx)

	s.logger.Info("Request submitted",
		zap.String("ticket", r.TicketID),
		zap.Int("uploads_failed", len(outcome.UploadFailures)),
	)
	out := r.Clone()
	return &out, outcome, nil
}

func (s *RequestService) storeSummary(ctx context.Context, r entity.Request, now time.Time) (string, error) {
	doc, err := s.render(summary.FromRequest(r), now)
	if err != nil {
		return "", err
	}
	file := File{
		Name:        relay.SummaryName(r.TicketID),
		ContentType: "application/pdf",
		Size:        int64(len(doc)),
		Open:        func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(doc)), nil },
	}
	return s.uploadOne(ctx, file, relay.DestSummary, file.Name)
}

func (s *RequestService) submissionIntents(r entity.Request) []notify.Intent {
	intents := make([]notify.Intent, 0, len(s.coordinators)+1)
	for _, c := range s.coordinators {
		intents = append(intents, notify.Intent{
			Recipient: c.Email,
			Template:  notify.TplCoordinatorNewRequest,
			Data:      notify.Data{Request: r, RecipientName: c.Name},
		})
	}
	intents = append(intents, notify.Intent{
		Recipient: r.Email,
		Template:  notify.TplRequesterConfirmation,
		Data:      notify.Data{Request: r, RecipientName: r.Name},
	})
	return intents
}
