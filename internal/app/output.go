package app

import (
	"encoding/json"
	"fmt"
	"io"

	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
)

// DescribeError renders an error for operators as "CODE: message".
func DescribeError(err error) string {
	if err == nil {
		return ""
	}
	e := appErrors.FromError(err)
	return fmt.Sprintf("%s: %s", e.Code, e.Error())
}

// WriteJSON prints v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ModeBanner describes whether a run wrote anything.
func ModeBanner(dryRun bool) string {
	if dryRun {
		return "DRY RUN (no changes written; pass --execute to apply)"
	}
	return "EXECUTE"
}
