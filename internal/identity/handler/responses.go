package handler

import (
	"time"

	"correspondence/internal/identity/models"
	"correspondence/internal/query"
)

// UserResponse is the public view of a user. The password digest never
// leaves the service.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Division string `json:"division"`
}

type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        UserResponse `json:"user"`
}

// CreateUserResponse carries the initial password once so the administrator
// can hand it over.
type CreateUserResponse struct {
	User            UserResponse `json:"user"`
	InitialPassword string       `json:"initial_password"`
}

type UpdateUserResponse struct {
	User             UserResponse `json:"user"`
	CredentialsReset bool         `json:"credentials_reset"`
	InitialPassword  string       `json:"initial_password,omitempty"`
}

type UserListResponse struct {
	Items      []UserResponse   `json:"items"`
	Pagination query.Pagination `json:"pagination"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:       int64(u.ID),
		Username: u.Username,
		FullName: u.FullName,
		Role:     u.Role.String(),
		Division: u.Division.String(),
	}
}
