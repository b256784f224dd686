// Package auth turns bearer tokens into actors and answers permission checks
// from the grants carried by the actor.
package auth

import (
	"CommentThreads/internal/models"
	"errors"
	"fmt"
	jwt "github.com/golang-jwt/jwt/v5"
	"slices"
	"strconv"
	"strings"
)

const Wildcard = "*"

// RolePermissions expands the role claim into permission grants.
var RolePermissions = map[string][]string{
	"admin":     {Wildcard},
	"moderator": {models.PermApprove, models.PermRemove, models.PermModerate, models.PermUpdate},
}

type Claims struct {
	jwt.RegisteredClaims
	Username    string   `json:"username,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"perms,omitempty"`
}

type JWTVerifier struct {
	Secret []byte
}

// Parse verifies an HS256 token. An empty secret rejects every token.
func (v JWTVerifier) Parse(tokenString string) (*Claims, error) {
	if len(v.Secret) == 0 {
		return nil, errors.New("no signing secret configured")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return v.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Actor builds the request actor from verified claims. The subject must be a
// positive numeric user id.
func (c *Claims) Actor(ip string) (models.Actor, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Subject), 10, 64)
	if err != nil || id <= 0 {
		return models.Actor{}, fmt.Errorf("invalid subject %q", c.Subject)
	}
	perms := slices.Clone(c.Permissions)
	perms = append(perms, RolePermissions[strings.ToLower(strings.TrimSpace(c.Role))]...)
	return models.Actor{ID: id, Username: c.Username, IP: ip, Permissions: perms}, nil
}

func Guest(ip string) models.Actor {
	return models.Actor{IP: ip}
}

// Granted answers permission checks from the actor's own grants.
type Granted struct{}

func (Granted) HasPermission(actor models.Actor, action string) bool {
	if actor.IsGuest() {
		return false
	}
	return slices.Contains(actor.Permissions, action) || slices.Contains(actor.Permissions, Wildcard)
}
