package binder

import (
	"encoding/json"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/mold/v4"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/kyonifer/silveran-reader-sub004/pkg/errcodes"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
)

var unknownFieldsRE = regexp.MustCompile(`^json: unknown field "(.*)"$`)

// DefaultBodyLimit caps JSON request bodies. Every payload of the local API
// is a small metadata or position document.
const DefaultBodyLimit = 1 << 20

const (
	allowEmptyBodyKey     = "allow_empty_body"
	allowUnknownFieldsKey = "allow_unknown_fields"
)

// AllowEmptyBody lets writes on a route omit their body, so every field of
// the payload keeps its default.
func AllowEmptyBody(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Set(allowEmptyBodyKey, true)
		return next(c)
	}
}

// AllowUnknownFields accepts payloads with fields the route doesn't know.
func AllowUnknownFields(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Set(allowUnknownFieldsKey, true)
		return next(c)
	}
}

// Binder is a custom struct that implements the Echo Binder interface. It binds
// to a struct, uses mold to clean up the params, and validator to validate
// them.
type Binder struct {
	queryDecoder *schema.Decoder
	conform      *mold.Transformer
	validate     *validator.Validate
	bodyLimit    int64
}

// New initializes a new Binder instance with the appropriate validation
// functions registered.
func New() (*Binder, error) {
	queryDecoder := schema.NewDecoder()
	queryDecoder.SetAliasTag("query")
	conform := modifiers.New()
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := validate.RegisterValidation(date, dateValidator); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := validate.RegisterValidation(variant, variantValidator); err != nil {
		return nil, errors.WithStack(err)
	}

	return &Binder{queryDecoder, conform, validate, DefaultBodyLimit}, nil
}

// Bind binds, modifies, and validates payloads against the given struct.
// Bodies must be JSON; queries are only read for GET and DELETE.
func (b *Binder) Bind(i interface{}, c echo.Context) error {
	req := c.Request()

	if req.ContentLength != 0 {
		ctype := req.Header.Get(echo.HeaderContentType)
		if !strings.HasPrefix(ctype, echo.MIMEApplicationJSON) {
			return errcodes.UnsupportedMediaType()
		}
		if err := b.decodeJSON(i, c); err != nil {
			return err
		}
	} else if req.Method == http.MethodGet || req.Method == http.MethodDelete {
		if err := b.decodeQuery(i, c.QueryParams()); err != nil {
			return err
		}
	} else if allow, _ := c.Get(allowEmptyBodyKey).(bool); !allow {
		return errcodes.EmptyRequestBody()
	}

	if err := b.conform.Struct(req.Context(), i); err != nil {
		return errors.WithStack(err)
	}

	if err := defaults.Set(i); err != nil {
		return errors.WithStack(err)
	}

	if err := b.validate.Struct(i); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) || len(errs) == 0 {
			return errors.WithStack(err)
		}
		return fieldError(errcodes.ValidationError(formatValidationError(errs[0])), errs[0].Field())
	}
	return nil
}

func (b *Binder) decodeJSON(i interface{}, c echo.Context) error {
	req := c.Request()
	defer req.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(c.Response(), req.Body, b.bodyLimit))
	if allow, _ := c.Get(allowUnknownFieldsKey).(bool); !allow {
		dec.DisallowUnknownFields()
	}

	err := dec.Decode(i)
	if err == nil {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errcodes.PayloadTooLarge(tooLarge.Limit)
	}

	// return better error message when there are unknown fields
	if matches := unknownFieldsRE.FindStringSubmatch(err.Error()); len(matches) > 1 {
		return fieldError(errcodes.UnknownParameter(matches[1]), matches[1])
	}

	// return better error message on type errors
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fieldError(errcodes.ValidationTypeError(formatUnmarshalTypeError(typeErr)), strings.Trim(typeErr.Field, "."))
	}

	logger.FromEchoContext(c).Err(err).Warn("undecodable json payload")
	return errcodes.MalformedPayload()
}

func (b *Binder) decodeQuery(i interface{}, params url.Values) error {
	err := b.queryDecoder.Decode(i, params)
	if err == nil {
		return nil
	}

	var errs schema.MultiError
	if !errors.As(err, &errs) || len(errs) == 0 {
		return errors.WithStack(err)
	}
	// Report the first offending key in name order so the answer is stable.
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	first := errs[keys[0]]

	if convErr, ok := first.(schema.ConversionError); ok {
		return fieldError(errcodes.ValidationTypeError(formatSchemaConversionError(convErr)), convErr.Key)
	}
	if unknownErr, ok := first.(schema.UnknownKeyError); ok {
		return fieldError(errcodes.UnknownParameter(unknownErr.Key), unknownErr.Key)
	}
	return errors.WithStack(first)
}

// fieldError names the offending field in the error details.
func fieldError(err error, field string) error {
	var e *errcodes.Error
	if errors.As(err, &e) {
		e.Details = map[string]interface{}{"field": field}
	}
	return err
}
