package domain

import "time"

// User is a registered account. ID comes from the database identity column.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Mobile       *string    `json:"mobile,omitempty"`
	FirebaseUID  *string    `json:"firebase_uid,omitempty"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// PublicUser is the view of an account returned to clients.
type PublicUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

// RegisterRequest represents data needed to create a new account
type RegisterRequest struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Mobile    *string
}

// UpdateUserRequest represents data for updating a user
type UpdateUserRequest struct {
	FirstName *string
	LastName  *string
	Mobile    *string
}

// Session is what register and login hand back.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      PublicUser `json:"user"`
}
