package validator

import (
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// SKUは英数字で始まり、英数字と . _ - だけ
var skuPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// RequestValidator はecho.Validatorの実装（go-playground/validator）
type RequestValidator struct {
	v *validator.Validate
}

func New() *RequestValidator {
	v := validator.New()

	// decimal.Decimalを数値として扱う（gte=0などのタグ用）
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("sku", func(fl validator.FieldLevel) bool {
		return IsSKULike(fl.Field().String())
	})

	return &RequestValidator{v: v}
}

func (r *RequestValidator) Validate(i interface{}) error {
	return r.v.Struct(i)
}

func IsSKULike(s string) bool {
	return skuPattern.MatchString(s)
}
