package http

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	usernameTag   = "username"
	usernameText  = "{0} must be 3 to 30 letters, digits or underscores"
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

	slugTag   = "slug"
	slugText  = "{0} may only contain lowercase letters, digits and hyphens"
	slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

	requiredTag  = "required"
	requiredText = "this field is required"
)

// requestValidator implements echo.Validator with English field messages keyed by JSON names.
type requestValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newRequestValidator() *requestValidator {
	locale := en.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("en")

	validate := validator.New()
	_ = en_translations.RegisterDefaultTranslations(validate, trans)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(usernameTag, func(fl validator.FieldLevel) bool {
		return usernameRegex.MatchString(fl.Field().String())
	})
	registerTranslation(validate, trans, usernameTag, usernameText, false)
	_ = validate.RegisterValidation(slugTag, func(fl validator.FieldLevel) bool {
		return slugRegex.MatchString(fl.Field().String())
	})
	registerTranslation(validate, trans, slugTag, slugText, false)
	registerTranslation(validate, trans, requiredTag, requiredText, true)

	return &requestValidator{validate: validate, translator: trans}
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// fieldMessages renders validation errors as {field: message}.
func (v *requestValidator) fieldMessages(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fieldPath(fe)] = fe.Translate(v.translator)
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace: "RegisterInput.email" -> "email".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func registerTranslation(validate *validator.Validate, trans ut.Translator, tag, text string, override bool) {
	_ = validate.RegisterTranslation(
		tag, trans,
		func(t ut.Translator) error { return t.Add(tag, text, override) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}
