package levelAuth

import (
	"context"
	"errors"
	"strings"
)

// Profile returns the account view for userID. An empty id is a validation error.
func (e *Engine) Profile(ctx context.Context, userID string) (Profile, error) {
	if !e.ready() {
		return Profile{}, ErrEngineNotReady
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Profile{}, fieldError("userId", "User ID is required")
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Profile{}, ErrUserNotFound
		}
		return Profile{}, storeErr(err)
	}

	e.metricInc(MetricProfileRead)
	return Profile{
		ID:          user.ID,
		Name:        user.Name,
		Surname:     user.Surname,
		Email:       user.Email,
		Username:    user.Username,
		Mobile:      user.Mobile,
		AccessLevel: user.AccessLevel,
		UplineID:    user.UplineID,
		Verified:    user.Verified,
		CreatedAt:   user.CreatedAt,
	}, nil
}
