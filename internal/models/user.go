package models

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Phone        string `json:"phone,omitempty"`
	PasswordHash string `json:"passwordHash,omitempty"`
	// Password is the cleartext secret of documents written before hashing.
	// It is only read for verification and cleared on the next login.
	Password  string `json:"password,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func (u User) Redacted() User {
	u.PasswordHash = ""
	u.Password = ""
	return u
}

func (u User) HasCredentials() bool {
	return u.PasswordHash != "" || u.Password != ""
}
