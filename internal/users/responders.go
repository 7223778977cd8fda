package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coursehub/users-service/internal/messaging"
	"github.com/coursehub/users-service/internal/store"
)

// UserDetails answers user_details_queue requests: email, name and the
// course ids currently in the user's cart. An unknown user acknowledges the
// request without a reply; the caller's timeout covers it.
func (s *Service) UserDetails(ctx context.Context, body []byte) (*messaging.Reply, error) {
	req, err := parseUserRequest(body)
	if err != nil {
		return nil, err
	}

	u, err := s.users.ByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("user details requested for unknown user", "userId", req.UserID)
			return nil, nil
		}
		return nil, err
	}

	courseIDs, err := s.cart.CourseIDs(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	reply, err := json.Marshal(userDetailsReply{
		Email:     u.Email,
		Name:      u.Name,
		CourseIDs: courseIDs,
	})
	if err != nil {
		return nil, err
	}

	return &messaging.Reply{Body: reply}, nil
}

// UserInfo answers legacy user_info_queue requests. The reply goes to the
// fixed per-user response queue rather than a request-supplied destination.
func (s *Service) UserInfo(ctx context.Context, body []byte) (*messaging.Reply, error) {
	req, err := parseUserRequest(body)
	if err != nil {
		return nil, err
	}

	u, err := s.users.ByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("user info requested for unknown user", "userId", req.UserID)
			return nil, nil
		}
		return nil, err
	}

	reply, err := json.Marshal(userInfoReply{Email: u.Email, Name: u.Name})
	if err != nil {
		return nil, err
	}

	return &messaging.Reply{
		Body:  reply,
		Queue: userInfoReplyQueue(req.UserID),
	}, nil
}

func parseUserRequest(body []byte) (*userDetailsRequest, error) {
	req := &userDetailsRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("%w: %v", messaging.ErrBadRequest, err)
	}
	if req.UserID == 0 {
		return nil, fmt.Errorf("%w: missing userId", messaging.ErrBadRequest)
	}
	return req, nil
}
