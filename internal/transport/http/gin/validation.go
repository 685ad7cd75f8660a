package httpgin

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kirinyoku/tixbook/internal/domain"
)

var registerOnce sync.Once

// registerValidators adds the city, category and money tags to gin's
// validator and makes it report JSON field names. Decimals are validated in
// their string form.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})

		v.RegisterCustomTypeFunc(func(f reflect.Value) any {
			if d, ok := f.Interface().(decimal.Decimal); ok {
				return d.String()
			}
			return nil
		}, decimal.Decimal{})

		_ = v.RegisterValidation("city", func(fl validator.FieldLevel) bool {
			return domain.City(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
			return domain.Category(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
			d, err := decimal.NewFromString(fl.Field().String())
			if err != nil {
				return false
			}
			return !d.IsNegative() && d.Equal(d.Round(2))
		})
	})
}
