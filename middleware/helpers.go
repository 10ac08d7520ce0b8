package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/padel-system/utils"
	"github.com/golang-jwt/jwt/v4"
)

var ErrNoUserInContext = errors.New("user claims not found in context or invalid type")

func GetUserIDFromContext(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return "", ErrNoUserInContext
	}
	return userIDFromClaims(claims)
}

func userIDFromClaims(claims jwt.MapClaims) (string, error) {
	raw, ok := claims[utils.ClaimUserID]
	if !ok {
		return "", fmt.Errorf("missing '%s' claim in token", utils.ClaimUserID)
	}
	userID, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("invalid type for '%s' claim: expected string, got %T", utils.ClaimUserID, raw)
	}
	if userID == "" {
		return "", fmt.Errorf("empty '%s' claim in token", utils.ClaimUserID)
	}
	return userID, nil
}
