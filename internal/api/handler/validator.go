package handler

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"go.uber.org/zap"
)

var (
	trans     ut.Translator
	transOnce sync.Once
)

// initTrans switches gin's validator to json field names and registers
// English messages for the built-in tags.
func initTrans() {
	transOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		enT := en.New()
		uni := ut.New(enT, enT)
		t, _ := uni.GetTranslator("en")
		if err := en_translations.RegisterDefaultTranslations(v, t); err != nil {
			zap.L().Warn("validator translations unavailable", zap.Error(err))
			return
		}
		trans = t
	})
}

// bindMessage renders binding failures for the client. Validation errors
// become "stars is a required field"; anything else is a malformed body.
func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if trans == nil || !errors.As(err, &verrs) {
		return "invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(trans))
	}
	return strings.Join(msgs, "; ")
}
