package validator

import (
	"fmt"

	"github.com/PaesslerAG/jsonpath"

	"github.com/aqa-systems/brain/internal/utdl"
	"github.com/aqa-systems/brain/pkg/apierrors"
)

// checkJSONPaths statically compiles every json_body assertion path and body
// extraction path with PaesslerAG/jsonpath, catching a malformed expression
// at validation time instead of deferring the failure to the executor.
func checkJSONPaths(p utdl.Plan) []*apierrors.StructuredError {
	var errs []*apierrors.StructuredError
	for _, s := range p.Steps {
		for i, a := range s.Assertions {
			if a.Type != utdl.AssertionJSONBody || a.Path == "" {
				continue
			}
			if _, err := jsonpath.New(a.Path); err != nil {
				errs = append(errs, apierrors.ShapeInvalid(
					fmt.Sprintf("$.steps[?(@.id=='%s')].assertions[%d].path", s.ID, i),
					fmt.Sprintf("invalid JSONPath expression %q: %v", a.Path, err)))
			}
		}
		for i, e := range s.Extract {
			if e.Source != utdl.ExtractBody || e.Path == "" {
				continue
			}
			if _, err := jsonpath.New(e.Path); err != nil {
				errs = append(errs, apierrors.ShapeInvalid(
					fmt.Sprintf("$.steps[?(@.id=='%s')].extract[%d].path", s.ID, i),
					fmt.Sprintf("invalid JSONPath expression %q: %v", e.Path, err)))
			}
		}
	}
	return errs
}
