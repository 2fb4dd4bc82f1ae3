// Package validator wraps go-playground struct validation behind a small
// type the handlers take by injection, keeping tag parsing out of them.
package validator

import "github.com/go-playground/validator/v10"

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	return &Validator{v: validator.New()}
}

// Struct checks the request DTO against its validate tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}
