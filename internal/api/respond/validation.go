package respond

import (
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"

	"codegen-app/internal/domain/apperr"
	"codegen-app/internal/infra/llm"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators configures gin's validator to report JSON field names
// and adds the safepath rule for relative file paths.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		if name == "-" {
			return ""
		}
		return name
	})
	return v.RegisterValidation("safepath", func(fl validator.FieldLevel) bool {
		return llm.CleanPath(fl.Field().String()) != ""
	})
}

// Bind decodes the JSON body into dst and reports the first problem as
// InvalidInput.
func Bind(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return BindError(err)
	}
	return nil
}

func BindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return apperr.New(apperr.KindInvalidInput, "Missing required field: "+fe.Field())
		case "oneof":
			return apperr.New(apperr.KindInvalidInput, "Invalid value for "+fe.Field()+": must be one of "+fe.Param())
		case "safepath":
			return apperr.New(apperr.KindInvalidInput, "Invalid file path in "+fe.Field())
		default:
			return apperr.New(apperr.KindInvalidInput, "Invalid field: "+fe.Field())
		}
	}
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return apperr.New(apperr.KindInvalidInput, "Request body is required")
	case errors.Is(err, io.ErrUnexpectedEOF), errors.As(err, &syn), errors.As(err, &typ):
		return apperr.New(apperr.KindInvalidInput, "Malformed JSON")
	}
	return apperr.Wrap(apperr.KindInvalidInput, "Invalid request body", err)
}
