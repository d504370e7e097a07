package httpadapter

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

func bindPathString(r *http.Request, name string) (string, error) {
	var value string
	err := runtime.BindStyledParameterWithOptions("simple", name, r.PathValue(name), &value, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind path parameter "+name, err)
	}
	return value, nil
}

func bindQueryInt(r *http.Request, name string) (int, error) {
	var value int
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &value); err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "bind query parameter "+name, err)
	}
	return value, nil
}

func bindQueryString(r *http.Request, name string) (string, error) {
	var value string
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &value); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind query parameter "+name, err)
	}
	return value, nil
}
