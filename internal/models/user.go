package models

import "time"

// AvatarPlaceholderURL is assigned to every user created at sign-up.
const AvatarPlaceholderURL = "https://img.freepik.com/free-psd/3d-illustration-person-with-sunglasses_23-2149436188.jpg"

// User is one document of the users collection.
type User struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is an established login. Secret is the bearer credential.
type Session struct {
	ID     string `json:"id"`
	Secret string `json:"-"`
}
