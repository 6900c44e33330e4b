package handler

import (
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "reflect"
    "strings"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"
)

// ValidationIssue describes one problem with a request body.  Loc is the
// path to the offending value, starting with "body".
type ValidationIssue struct {
    Type string `json:"type"`
    Loc  []any  `json:"loc"`
    Msg  string `json:"msg"`
}

// ValidationResponse is the 422 body.
type ValidationResponse struct {
    Detail []ValidationIssue `json:"detail"`
}

// ErrTrailingData is returned by StrictJSONSerializer when the body holds
// anything but whitespace after the first JSON value.
var ErrTrailingData = errors.New("unexpected data after JSON value")

// StrictJSONSerializer is echo's default serializer with one change: a
// request body must be exactly one JSON value.
type StrictJSONSerializer struct {
    echo.DefaultJSONSerializer
}

// Deserialize decodes the body into i and rejects trailing content.
func (s StrictJSONSerializer) Deserialize(c echo.Context, i any) error {
    dec := json.NewDecoder(c.Request().Body)
    if err := dec.Decode(i); err != nil {
        return err
    }
    if _, err := dec.Token(); err != io.EOF {
        return ErrTrailingData
    }
    return nil
}

const msgNotObject = "Input should be a valid dictionary or object to extract fields from"

// RequestValidator adapts go-playground/validator to echo.Validator.  Field
// names in errors are taken from json tags.
type RequestValidator struct {
    v *validator.Validate
}

// NewValidator returns a RequestValidator for e.Validator.
func NewValidator() *RequestValidator {
    v := validator.New(validator.WithRequiredStructEnabled())
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
        if name == "-" {
            return ""
        }
        return name
    })
    return &RequestValidator{v: v}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i any) error {
    return rv.v.Struct(i)
}

// validationIssues converts a validator error into issues.  Errors of any
// other kind become a single body-level issue.
func validationIssues(err error) []ValidationIssue {
    var verrs validator.ValidationErrors
    if !errors.As(err, &verrs) {
        return []ValidationIssue{{Type: "value_error", Loc: []any{"body"}, Msg: err.Error()}}
    }
    out := make([]ValidationIssue, 0, len(verrs))
    for _, fe := range verrs {
        issue := ValidationIssue{Type: fe.Tag(), Loc: []any{"body", fe.Field()}, Msg: fe.Error()}
        if fe.Tag() == "required" {
            issue.Type = "missing"
            issue.Msg = "Field required"
        }
        out = append(out, issue)
    }
    return out
}

// bindIssue classifies an error returned by echo's binder.  The binder wraps
// the decoder error as HTTPError.Internal, which errors.As unwraps.
func bindIssue(err error) ValidationIssue {
    var typeErr *json.UnmarshalTypeError
    var synErr *json.SyntaxError
    var httpErr *echo.HTTPError
    switch {
    case errors.As(err, &typeErr):
        if typeErr.Field == "" {
            return ValidationIssue{Type: "model_attributes_type", Loc: []any{"body"}, Msg: msgNotObject}
        }
        loc := []any{"body"}
        for _, p := range strings.Split(typeErr.Field, ".") {
            loc = append(loc, p)
        }
        return ValidationIssue{Type: "string_type", Loc: loc, Msg: "Input should be a valid string"}
    case errors.Is(err, ErrTrailingData):
        return ValidationIssue{Type: "json_invalid", Loc: []any{"body"}, Msg: "JSON decode error"}
    case errors.As(err, &synErr):
        return ValidationIssue{Type: "json_invalid", Loc: []any{"body", synErr.Offset}, Msg: "JSON decode error"}
    case errors.As(err, &httpErr) && httpErr.Code == http.StatusUnsupportedMediaType:
        return ValidationIssue{Type: "model_attributes_type", Loc: []any{"body"}, Msg: msgNotObject}
    }
    return ValidationIssue{Type: "json_invalid", Loc: []any{"body"}, Msg: "JSON decode error"}
}
