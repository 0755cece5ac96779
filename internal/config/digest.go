package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// LLM providers accepted in the declaration.
const (
	ProviderGoogle    = "google"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrInvalid is matched by every error returned for a malformed declaration.
var ErrInvalid = errors.New("config invalid")

// InvalidError describes the first schema violation found in a declaration.
type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config invalid: %s", e.Reason)
	}
	return fmt.Sprintf("config invalid: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalid) succeed.
func (e *InvalidError) Is(target error) bool {
	return target == ErrInvalid
}

// Digest is the validated digest declaration: who gets a digest and about whom.
type Digest struct {
	Users []User
	LLM   LLM
	// Prompt is a custom summary template; empty means the built-in one.
	Prompt string
}

// User is one digest recipient.
type User struct {
	// Emails holds every delivery address; the first one keys the dedup state.
	Emails  []string
	Context string
	Follows []Follow
}

// PrimaryEmail returns the address used as the recipient's state identity.
func (u User) PrimaryEmail() string {
	return u.Emails[0]
}

// Follow is a followed account handle.
type Follow struct {
	Username string
}

// LLM selects the summarization provider and model.
type LLM struct {
	Provider string
	Model    string
}

// Addresses decodes either a single address or a list of addresses.
type Addresses []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Addresses) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*a = Addresses{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*a = list
		return nil
	default:
		return fmt.Errorf("line %d: email must be a string or a list of strings", value.Line)
	}
}

type rawDigest struct {
	Users  []rawUser `yaml:"users" validate:"required,dive"`
	LLM    *rawLLM   `yaml:"llm" validate:"required"`
	Prompt *string   `yaml:"prompt"`
}

type rawUser struct {
	Email   Addresses   `yaml:"email" validate:"required,min=1,dive,required,email"`
	Context *string     `yaml:"context" validate:"required"`
	Follows []rawFollow `yaml:"follows" validate:"required,dive"`
}

type rawFollow struct {
	Username string `yaml:"username" validate:"required"`
}

type rawLLM struct {
	Provider string `yaml:"provider" validate:"required,oneof=google openai anthropic"`
	Model    string `yaml:"model" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// LoadDigest reads and validates the digest declaration at path.
func LoadDigest(path string) (*Digest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read declaration: %w", err)
	}
	return ParseDigest(data)
}

// ParseDigest decodes and validates a YAML digest declaration.
// Unknown fields are rejected.
func ParseDigest(data []byte) (*Digest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw rawDigest
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &InvalidError{Reason: "empty declaration"}
		}
		return nil, &InvalidError{Reason: err.Error()}
	}

	if err := validate.Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &InvalidError{Field: fieldPath(verrs[0]), Reason: describe(verrs[0])}
		}
		return nil, &InvalidError{Reason: err.Error()}
	}

	d := &Digest{
		Users: make([]User, 0, len(raw.Users)),
		LLM:   LLM{Provider: raw.LLM.Provider, Model: raw.LLM.Model},
	}
	if raw.Prompt != nil {
		d.Prompt = *raw.Prompt
	}
	for _, ru := range raw.Users {
		u := User{
			Emails:  []string(ru.Email),
			Context: *ru.Context,
			Follows: make([]Follow, 0, len(ru.Follows)),
		}
		for _, f := range ru.Follows {
			u.Follows = append(u.Follows, Follow{Username: strings.TrimPrefix(f.Username, "@")})
		}
		d.Users = append(d.Users, u)
	}
	return d, nil
}

// fieldPath drops the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return fmt.Sprintf("%q is not a valid email address", fe.Value())
	case "oneof":
		return fmt.Sprintf("%q must be one of: %s", fe.Value(), fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
