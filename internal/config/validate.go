package config

import (
	stdErrors "errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "graphseed/internal/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if c == nil {
		return invalid("configuration is required", nil)
	}

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if stdErrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return invalid(describe(first), err).
				WithField("field", first.Namespace()).
				WithField("rule", first.Tag()).
				WithField("violations", len(fieldErrs))
		}
		return invalid("configuration is invalid", err)
	}

	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("server.url must be an absolute http(s) URL", err).
			WithField("url", c.Server.URL)
	}

	if c.Process.Enabled && len(c.Process.Command) == 0 {
		return invalid("process.command is required when process.enabled is set", nil)
	}

	seen := make(map[string]struct{}, len(c.Repositories))
	for _, repo := range c.Repositories {
		if _, dup := seen[repo.ID]; dup {
			return invalid("repository declared twice", nil).WithField("repository", repo.ID)
		}
		seen[repo.ID] = struct{}{}
	}

	for i, ds := range c.Datasets {
		if c.RepositoryFor(ds) == "" {
			return invalid("dataset has no repository and no default_repository is set", nil).
				WithField("dataset", i).
				WithField("path", ds.Path)
		}
		if ds.Context != "" && !strings.Contains(ds.Context, ":") {
			return invalid("dataset context must be an absolute IRI", nil).
				WithField("dataset", i).
				WithField("context", ds.Context)
		}
	}

	return nil
}

func invalid(message string, err error) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCategoryValidation, apperrors.CodeValidationGeneric, message, err).
		WithModule("config").
		WithOperation("Validate")
}

func describe(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
}
