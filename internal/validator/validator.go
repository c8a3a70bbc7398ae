package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/itilprep/itil-exam-backend/internal/model"
)

// tagAnswerInRange is reported when an answer index does not point at one of
// the options of the same question.
const tagAnswerInRange = "answer_in_range"

var (
	// trans is the singleton English translator for validation errors.
	trans     ut.Translator
	setupOnce sync.Once
)

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup; later calls are no-ops.
func Setup() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*govalidator.Validate)
		if !ok {
			return
		}

		// Use JSON tag name for field names in error messages.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
		en_translations.RegisterDefaultTranslations(v, trans)

		v.RegisterStructValidation(validateAddQuestion, model.AddQuestionRequest{})
		v.RegisterStructValidation(validateQuestionResult, model.QuestionResultRequest{})
		v.RegisterTranslation(tagAnswerInRange, trans,
			func(u ut.Translator) error {
				return u.Add(tagAnswerInRange, "{0} must be the index of one of the options", true)
			},
			func(u ut.Translator, fe govalidator.FieldError) string {
				t, _ := u.T(tagAnswerInRange, fe.Field())
				return t
			},
		)
	})
}

func validateAddQuestion(sl govalidator.StructLevel) {
	req := sl.Current().Interface().(model.AddQuestionRequest)
	if !inRange(req.CorrectAnswer, len(req.Options)) {
		sl.ReportError(req.CorrectAnswer, "correct_answer", "CorrectAnswer", tagAnswerInRange, "")
	}
}

func validateQuestionResult(sl govalidator.StructLevel) {
	req := sl.Current().Interface().(model.QuestionResultRequest)
	if !inRange(req.CorrectAnswer, len(req.Options)) {
		sl.ReportError(req.CorrectAnswer, "correct_answer", "CorrectAnswer", tagAnswerInRange, "")
	}
	if req.SelectedAnswer != nil && !inRange(req.SelectedAnswer, len(req.Options)) {
		sl.ReportError(req.SelectedAnswer, "selected_answer", "SelectedAnswer", tagAnswerInRange, "")
	}
}

// inRange treats a missing index as valid; "required" reports that case.
func inRange(idx *int, n int) bool {
	if idx == nil || n == 0 {
		return true
	}
	return *idx >= 0 && *idx < n
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			if trans == nil {
				fields[fe.Field()] = fe.Error()
				continue
			}
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
