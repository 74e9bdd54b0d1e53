package cmd

import (
	stderrors "errors"

	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
)

func suggestion(err error) string {
	var se *cserrors.ServiceError
	if stderrors.As(err, &se) {
		return se.Suggestion
	}
	return ""
}
