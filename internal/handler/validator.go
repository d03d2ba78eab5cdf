package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"nova_chat_server/pkg/errorx"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	zhTranslations "github.com/go-playground/validator/v10/translations/zh"
)

// trans 全局翻译器，校验错误消息本地化用
var trans ut.Translator

// InitTrans 初始化校验错误翻译器
// locale 支持 "zh" 和 "en"
func InitTrans(locale string) (err error) {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine type")
	}

	// 注册 json tag 作为字段名，错误消息里显示的是接口字段而非结构体字段
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	zhT := zh.New()
	enT := en.New()
	uni := ut.New(enT, zhT, enT)

	trans, ok = uni.GetTranslator(locale)
	if !ok {
		return fmt.Errorf("uni.GetTranslator(%s) failed", locale)
	}

	switch locale {
	case "en":
		err = enTranslations.RegisterDefaultTranslations(v, trans)
	default:
		err = zhTranslations.RegisterDefaultTranslations(v, trans)
	}
	return
}

// removeTopStruct 去掉错误消息 key 中的结构体名前缀
// "LoginRequest.telephone" -> "telephone"
func removeTopStruct(fields map[string]string) map[string]string {
	result := make(map[string]string, len(fields))
	for field, msg := range fields {
		result[field[strings.Index(field, ".")+1:]] = msg
	}
	return result
}

// asCodeError errors.As 的薄包装，response.go 用
func asCodeError(err error, target **errorx.CodeError) bool {
	return errors.As(err, target)
}
