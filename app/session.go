package app

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/classwatch/classwatch/lib/models"
	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionCookie = "classwatch_session"
	sessionExpiry = 30 * 24 * time.Hour
)

type sessionClaims struct {
	UserID uint   `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func (ctrl *controller) issueSession(w http.ResponseWriter, user *models.User) error {
	now := time.Now()
	claims := sessionClaims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionExpiry)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(ctrl.cfg.JWTSecret))
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   ctrl.cfg.Env == "production",
		MaxAge:   int(sessionExpiry.Seconds()),
	})
	return nil
}

// requireAuth validates the session cookie and loads the owning user before
// handing off to the wrapped handler.
func (ctrl *controller) requireAuth(next func(http.ResponseWriter, *http.Request, *models.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			ctrl.reject(w, http.StatusUnauthorized, errors.New("Unauthorized"))
			return
		}

		claims := &sessionClaims{}
		token, err := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(ctrl.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			ctrl.reject(w, http.StatusUnauthorized, errors.New("Unauthorized"))
			return
		}

		user, err := ctrl.svc.FindUser(r.Context(), claims.UserID)
		if err != nil {
			ctrl.reject(w, http.StatusUnauthorized, errors.New("Unauthorized"))
			return
		}

		next(w, r, user)
	}
}
