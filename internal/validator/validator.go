// Package validator collects human-readable validation failures for a
// request. Handlers run a series of Check calls and bail out with a 422
// response when HasErrors reports true.
package validator

import "slices"

type Validator struct {
	Errors []string `json:",omitempty"`
}

func (v Validator) HasErrors() bool {
	return len(v.Errors) != 0
}

func (v *Validator) AddError(message string) {
	if slices.Contains(v.Errors, message) {
		return
	}

	v.Errors = append(v.Errors, message)
}

func (v *Validator) Check(ok bool, message string) {
	if !ok {
		v.AddError(message)
	}
}
