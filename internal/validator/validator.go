package validator

import (
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/stemsi/exstem-live/internal/model"
)

var (
	trans     ut.Translator
	setupOnce sync.Once
)

// Setup installs JSON field naming, the engine's custom tags and English
// messages on gin's binding validator. Safe to call more than once.
func Setup() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*govalidator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(jsonName)
		_ = v.RegisterValidation("violation_type", func(fl govalidator.FieldLevel) bool {
			return model.ViolationType(fl.Field().String()).Valid()
		})

		enLocale := en.New()
		trans, _ = ut.New(enLocale, enLocale).GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(v, trans)
		_ = v.RegisterTranslation("violation_type", trans,
			func(t ut.Translator) error {
				return t.Add("violation_type", "{0} must be one of: "+violationTypeList(), true)
			},
			func(t ut.Translator, fe govalidator.FieldError) string {
				msg, _ := t.T("violation_type", fe.Field())
				return msg
			},
		)
	})
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func violationTypeList() string {
	names := make([]string, len(model.ViolationTypes))
	for i, t := range model.ViolationTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// TranslateErrors turns a bind error into field → message pairs. Decode
// failures that cannot be pinned to a field are reported under "detail".
func TranslateErrors(err error) map[string]string {
	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fieldPath(fe)] = fe.Translate(trans)
		}
		return fields
	}

	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return map[string]string{typeErr.Field: typeErr.Field + " must be a " + typeErr.Type.String()}
	case errors.Is(err, io.EOF):
		return map[string]string{"detail": "request body is required"}
	}
	return map[string]string{"detail": err.Error()}
}

// fieldPath drops the top-level struct name so nested errors read
// "questions[0].text" rather than "CreateExamRequest.questions[0].text".
func fieldPath(fe govalidator.FieldError) string {
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
		return rest
	}
	return fe.Field()
}

// Bind decodes the JSON body into dst and validates it. It returns nil on
// success.
func Bind(c *gin.Context, dst any) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
