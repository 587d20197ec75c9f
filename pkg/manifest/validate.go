package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"

	schemasassets "github.com/3leaps/hirelane/internal/assets/schemas"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

// SchemaID is the schema identifier for seed manifests.
const SchemaID = "hirelane/v1.0.0/seed-manifest"

var (
	// ErrSchemaNotFound indicates the embedded schema is missing.
	ErrSchemaNotFound = errors.New("manifest schema not found")

	// ErrValidationFailed is wrapped by every ValidationErrors.
	ErrValidationFailed = errors.New("manifest validation failed")
)

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

// ValidationError is one problem at a JSON pointer such as /jobs/0/title.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors collects every problem found in one manifest.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "validation failed"
	case 1:
		return e[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "manifest validation failed with %d errors:", len(e))
	for _, err := range e {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e ValidationErrors) Unwrap() error {
	return ErrValidationFailed
}

func (e *ValidationErrors) addf(path, format string, args ...any) {
	*e = append(*e, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validate checks m against the schema and the board rules. Unknown
// fields are lost once decoded, so use ValidateRaw on input documents.
func Validate(m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest for validation: %w", err)
	}
	if err := ValidateRaw(data); err != nil {
		return err
	}
	cp := *m
	cp.Candidates = append([]CandidateSeed(nil), m.Candidates...)
	return cp.Check()
}

// ValidateRaw checks a JSON document against the embedded seed-manifest
// schema. Warnings are ignored.
func ValidateRaw(jsonData []byte) error {
	v, err := getValidator()
	if err != nil {
		return err
	}
	diags, err := v.ValidateJSON(jsonData)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	var errs ValidationErrors
	for _, d := range diags {
		if d.Severity == schema.SeverityError {
			errs = append(errs, ValidationError{Path: d.Pointer, Message: d.Message})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Check enforces the seed rules the schema cannot express. Listed jobs
// must not share a slug, whether given or derived from the title the way
// the board derives it. Listed candidates must not share an email, case
// folded. Stages, statuses and application dates must parse. Legacy stage
// names are rewritten to their canonical form in place.
func (m *Manifest) Check() error {
	var errs ValidationErrors

	slugs := make(map[string]int, len(m.Jobs))
	for i, j := range m.Jobs {
		slug := pipeline.Slugify(j.Slug)
		if slug == "" {
			slug = pipeline.Slugify(j.Title)
		}
		switch prev, dup := slugs[slug]; {
		case slug == "":
			errs.addf(fmt.Sprintf("/jobs/%d/title", i), "%q does not produce a slug", j.Title)
		case dup:
			errs.addf(fmt.Sprintf("/jobs/%d", i), "slug %q is already used by /jobs/%d", slug, prev)
		default:
			slugs[slug] = i
		}
		if _, err := pipeline.ParseJobStatus(j.Status); err != nil {
			errs.addf(fmt.Sprintf("/jobs/%d/status", i), "unknown status %q", j.Status)
		}
	}

	emails := make(map[string]int, len(m.Candidates))
	for i := range m.Candidates {
		c := &m.Candidates[i]
		email := strings.ToLower(strings.TrimSpace(c.Email))
		if prev, dup := emails[email]; dup {
			errs.addf(fmt.Sprintf("/candidates/%d/email", i), "%q is already used by /candidates/%d", c.Email, prev)
		} else {
			emails[email] = i
		}
		if c.Stage != "" {
			if st, err := pipeline.ParseStage(c.Stage); err != nil {
				errs.addf(fmt.Sprintf("/candidates/%d/stage", i), "unknown stage %q", c.Stage)
			} else {
				c.Stage = string(st)
			}
		}
		if strings.TrimSpace(c.AppliedAt) != "" {
			if _, err := parseDate(c.AppliedAt); err != nil {
				errs.addf(fmt.Sprintf("/candidates/%d/applied_at", i), "%q is not a date", c.AppliedAt)
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func getValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		if len(schemasassets.SeedManifestSchema) == 0 {
			validatorErr = fmt.Errorf("%w: embedded seed-manifest schema is empty", ErrSchemaNotFound)
			return
		}
		validator, validatorErr = schema.NewValidator(schemasassets.SeedManifestSchema)
		if validatorErr != nil {
			validatorErr = fmt.Errorf("compile manifest schema: %w", validatorErr)
		}
	})
	return validator, validatorErr
}
