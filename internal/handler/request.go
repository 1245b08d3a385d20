package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/security/middleware"
	"github.com/wencestudios/freelancehub/internal/service"
)

// decode reads a JSON body into dst and validates it. The router caps
// the body size with middleware.LimitBody.
func decode(r *http.Request, v *validator.Validate, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Invalid("request body is required")
		}
		return domain.Invalid("invalid request body: " + err.Error())
	}
	if err := v.Struct(dst); err != nil {
		return domain.Invalid(describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(msgs, "; ")
}

// newValidator reports json field names in validation messages.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// actor returns the caller bound by the Authenticate middleware.
func actor(r *http.Request) (service.Actor, error) {
	s := middleware.GetSession(r.Context())
	if s == nil {
		return service.Actor{}, domain.ErrUnauthenticated
	}
	return service.ActorFromSession(s), nil
}

// deviceInfo describes the client from its headers. Clients may name
// themselves with X-Device-Id and X-Device-Type.
func deviceInfo(r *http.Request) service.DeviceInfo {
	lang, _, _ := strings.Cut(r.Header.Get("Accept-Language"), ",")
	return service.DeviceInfo{
		DeviceID:   r.Header.Get("X-Device-Id"),
		DeviceType: r.Header.Get("X-Device-Type"),
		UserAgent:  r.UserAgent(),
		IP:         middleware.ClientIP(r),
		Language:   strings.TrimSpace(lang),
	}
}
