package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID           string    `json:"id" bson:"_id" db:"id"`
	Email        string    `json:"email" bson:"email" db:"email"`
	FirstName    string    `json:"firstName" bson:"firstName" db:"first_name"`
	LastName     string    `json:"lastName" bson:"lastName" db:"last_name"`
	Role         Role      `json:"role" bson:"role" db:"role"`
	PasswordHash string    `json:"-" bson:"passwordHash" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt" db:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type Address struct {
	ID         string    `json:"id" bson:"_id" db:"id"`
	UserID     string    `json:"user" bson:"user" db:"user_id"`
	Street     string    `json:"street" bson:"street" db:"street"`
	City       string    `json:"city" bson:"city" db:"city"`
	PostalCode string    `json:"postalCode" bson:"postalCode" db:"postal_code"`
	Country    string    `json:"country" bson:"country" db:"country"`
	IsDefault  bool      `json:"isDefault" bson:"isDefault" db:"is_default"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt" db:"updated_at"`
}

func (a *Address) Validate() error {
	if a.Street == "" || a.City == "" || a.Country == "" {
		return InvalidInput("street, city and country are required")
	}
	return nil
}
