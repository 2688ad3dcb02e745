package jwttoken

import (
	"beacon/pkg/platform/middleware/operatorauth"
)

// Validator adapts JWTService to the operator auth middleware.
type Validator struct {
	service *JWTService
}

func NewValidator(service *JWTService) *Validator {
	return &Validator{service: service}
}

func (v *Validator) Validate(tokenString string) (*operatorauth.Claims, error) {
	claims, err := v.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &operatorauth.Claims{OperatorID: claims.OperatorID}, nil
}
