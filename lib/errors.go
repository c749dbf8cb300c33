package lib

import "errors"

var (
	ErrInvalidEmail         = errors.New("invalid email address")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrAlreadySubscribed    = errors.New("already subscribed to this class")
	ErrClassNotFound        = errors.New("class not found for the current term")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)
