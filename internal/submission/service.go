package submission

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/microcosm-cc/bluemonday"

	"github.com/GyroZepelix/mithril-forms/internal/audit"
	"github.com/GyroZepelix/mithril-forms/internal/datapath"
	"github.com/GyroZepelix/mithril-forms/internal/form"
	"github.com/GyroZepelix/mithril-forms/internal/formstate"
	"github.com/GyroZepelix/mithril-forms/internal/forms"
	"github.com/GyroZepelix/mithril-forms/internal/schema"
	"github.com/GyroZepelix/mithril-forms/internal/server"
)

// store persists submissions and drafts. *Repository implements it.
type store interface {
	Insert(ctx context.Context, form, schemaHash string, data map[string]any) (*Submission, error)
	List(ctx context.Context, form string, searchable []string, q QueryParams) ([]*Submission, int, error)
	GetByID(ctx context.Context, form, id string) (*Submission, error)
	Delete(ctx context.Context, form, id string) error
	UpsertDraft(ctx context.Context, form, id string, payload map[string]any) (*Draft, error)
	GetDraft(ctx context.Context, form, id string) (*Draft, error)
	DeleteDraft(ctx context.Context, form, id string) error
}

// Service runs the form state engine against loaded forms and persists
// what it allows to be stored.
type Service struct {
	forms  *forms.Registry
	repo   store
	audit  *audit.Service
	opts   formstate.Options
	policy *bluemonday.Policy
}

// NewService creates a new submission Service. The audit service is
// optional; if nil, audit events are skipped. debug enables per-field
// debug logging of every evaluation.
func NewService(registry *forms.Registry, repo *Repository, auditService *audit.Service, debug bool) *Service {
	return newService(registry, repo, auditService, debug)
}

func newService(registry *forms.Registry, repo store, auditService *audit.Service, debug bool) *Service {
	return &Service{
		forms: registry,
		repo:  repo,
		audit: auditService,
		opts: formstate.Options{
			Debug:  debug,
			Logger: slog.Default().With("component", "formstate"),
		},
		policy: bluemonday.UGCPolicy(),
	}
}

// ValidationError is returned when submitted data fails validation.
type ValidationError struct {
	Fields []server.FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d field errors", len(e.Fields))
}

func (s *Service) form(name string) (*schema.Form, error) {
	f, err := s.forms.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, name)
	}
	return f, nil
}

// Evaluate computes the state of every field of the form.
func (s *Service) Evaluate(_ context.Context, formName string, data, config map[string]any) (*formstate.FormState, error) {
	f, err := s.form(formName)
	if err != nil {
		return nil, err
	}
	st := formstate.Compute(f.Schema(), data, config, s.opts)
	return &st, nil
}

// Submit finalizes data and stores the result. Invalid data yields a
// *ValidationError listing every visible field error.
func (s *Service) Submit(ctx context.Context, formName string, data, config map[string]any, actorID string) (*Submission, error) {
	f, err := s.form(formName)
	if err != nil {
		return nil, err
	}

	sch := f.Schema()
	res := formstate.Finalize(sch, data, config, s.opts)
	if !res.Success {
		return nil, &ValidationError{Fields: fieldErrors(res.Errors)}
	}

	payload := scrubRichText(s.policy, sch, res.Data)
	sub, err := s.repo.Insert(ctx, f.Name, f.Hash, payload)
	if err != nil {
		return nil, fmt.Errorf("creating %s submission: %w", formName, err)
	}

	s.audit.Log(ctx, audit.Event{
		Action:     audit.ActionSubmissionCreate,
		ActorID:    actorID,
		Resource:   f.Name,
		ResourceID: sub.ID,
	})
	return sub, nil
}

// SaveDraft stores the autosave-eligible part of data under draftID. The
// AutoSave result is returned whether or not anything was stored.
func (s *Service) SaveDraft(ctx context.Context, formName, draftID string, data map[string]any) (formstate.AutoSaveResult, error) {
	f, err := s.form(formName)
	if err != nil {
		return formstate.AutoSaveResult{}, err
	}

	res := formstate.ExtractAutoSave(f.Schema(), data, s.opts)
	if !res.ShouldSave {
		return res, nil
	}

	if _, err := s.repo.UpsertDraft(ctx, f.Name, draftID, res.Payload); err != nil {
		return formstate.AutoSaveResult{}, fmt.Errorf("saving %s draft: %w", formName, err)
	}
	s.audit.Log(ctx, audit.Event{
		Action:     audit.ActionDraftSave,
		Resource:   f.Name,
		ResourceID: draftID,
		Payload:    map[string]any{"fields": len(res.Payload)},
	})
	return res, nil
}

// GetDraft returns a stored draft.
func (s *Service) GetDraft(ctx context.Context, formName, draftID string) (*Draft, error) {
	f, err := s.form(formName)
	if err != nil {
		return nil, err
	}
	d, err := s.repo.GetDraft(ctx, f.Name, draftID)
	if err != nil {
		return nil, fmt.Errorf("getting %s draft: %w", formName, err)
	}
	return d, nil
}

// DeleteDraft removes a stored draft.
func (s *Service) DeleteDraft(ctx context.Context, formName, draftID string) error {
	f, err := s.form(formName)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteDraft(ctx, f.Name, draftID); err != nil {
		return fmt.Errorf("deleting %s draft: %w", formName, err)
	}
	s.audit.Log(ctx, audit.Event{
		Action:     audit.ActionDraftDelete,
		Resource:   f.Name,
		ResourceID: draftID,
	})
	return nil
}

// List retrieves a page of stored submissions.
func (s *Service) List(ctx context.Context, formName string, q QueryParams) ([]*Submission, int, error) {
	f, err := s.form(formName)
	if err != nil {
		return nil, 0, err
	}
	subs, total, err := s.repo.List(ctx, f.Name, f.SearchableFields(), q)
	if err != nil {
		return nil, 0, fmt.Errorf("listing %s submissions: %w", formName, err)
	}
	return subs, total, nil
}

// GetByID retrieves one stored submission.
func (s *Service) GetByID(ctx context.Context, formName, id string) (*Submission, error) {
	f, err := s.form(formName)
	if err != nil {
		return nil, err
	}
	sub, err := s.repo.GetByID(ctx, f.Name, id)
	if err != nil {
		return nil, fmt.Errorf("getting %s submission: %w", formName, err)
	}
	return sub, nil
}

// Delete removes one stored submission.
func (s *Service) Delete(ctx context.Context, formName, id, actorID string) error {
	f, err := s.form(formName)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, f.Name, id); err != nil {
		return fmt.Errorf("deleting %s submission: %w", formName, err)
	}
	s.audit.Log(ctx, audit.Event{
		Action:     audit.ActionSubmissionDelete,
		ActorID:    actorID,
		Resource:   f.Name,
		ResourceID: id,
	})
	return nil
}

// fieldErrors converts finalizer errors to API field errors sorted by path.
func fieldErrors(errs map[string]string) []server.FieldError {
	out := make([]server.FieldError, 0, len(errs))
	for path, msg := range errs {
		out = append(out, server.FieldError{Field: path, Message: msg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// scrubRichText returns data with the string values of richtext and
// markdown fields passed through policy, at every depth.
func scrubRichText(policy *bluemonday.Policy, s *form.Schema, data map[string]any) map[string]any {
	if s == nil {
		return data
	}
	for _, f := range s.Fields {
		v, ok := datapath.Get(data, f.Key)
		if !ok {
			continue
		}
		switch {
		case f.ItemSchema != nil:
			switch c := v.(type) {
			case []any:
				for i, item := range c {
					if m, ok := item.(map[string]any); ok {
						c[i] = scrubRichText(policy, f.ItemSchema, m)
					}
				}
			case map[string]any:
				data = setKey(data, f.Key, scrubRichText(policy, f.ItemSchema, c))
			}
		case f.Widget.IsRichText():
			if str, ok := v.(string); ok {
				data = setKey(data, f.Key, policy.Sanitize(str))
			}
		}
	}
	return data
}

func setKey(data map[string]any, key string, v any) map[string]any {
	if out, ok := datapath.Set(data, key, v).(map[string]any); ok {
		return out
	}
	return data
}
