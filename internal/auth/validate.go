package auth

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/dermadash/internal/model"
)

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 8

// registrationValidate は登録入力の検証に使用するバリデータ。
var registrationValidate *validator.Validate

func init() {
	registrationValidate = validator.New()

	// エラーのフィールド名はJSONタグ名で報告する
	registrationValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = registrationValidate.RegisterValidation("password_strength", validatePasswordStrength)
}

// validatePasswordStrength は大文字・小文字・数字をそれぞれ1文字以上含むかを検証する。
func validatePasswordStrength(fl validator.FieldLevel) bool {
	var upper, lower, digit bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// ValidateRegistration は登録入力を検証する。
// 不正なフィールドがあればInvalidInputエラーを返す。
func ValidateRegistration(reg model.Registration) error {
	err := registrationValidate.Struct(reg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewInvalidInputError([]string{err.Error()})
	}

	fields := make([]string, 0, len(verrs))
	seen := make(map[string]bool)
	for _, fe := range verrs {
		if seen[fe.Field()] {
			continue
		}
		seen[fe.Field()] = true
		fields = append(fields, fe.Field())
	}
	return model.NewInvalidInputError(fields)
}
