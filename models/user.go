package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// Role is the closed set of account kinds.
type Role string

const (
	RoleCitizen  Role = "citizen"
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// ParseRole maps a requested role onto the closed set. Unknown values,
// including the legacy "user", become RoleCitizen.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RoleAdmin):
		return RoleAdmin
	case string(RoleEmployee):
		return RoleEmployee
	default:
		return RoleCitizen
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleAdmin, RoleEmployee:
		return true
	}
	return false
}

// GeoPoint is a last-known position reported by an employee.
type GeoPoint struct {
	Lat       float64   `bson:"lat" json:"lat"`
	Lng       float64   `bson:"lng" json:"lng"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

type User struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name            string             `bson:"name" json:"name"`
	Email           string             `bson:"email" json:"email"`
	Password        string             `bson:"passwordHash,omitempty" json:"-"`
	Role            Role               `bson:"role" json:"role"`
	Town            string             `bson:"town" json:"town"`
	EmpID           string             `bson:"empId,omitempty" json:"empId,omitempty"`
	Department      string             `bson:"department,omitempty" json:"department,omitempty"`
	IsOnDuty        bool               `bson:"isOnDuty" json:"isOnDuty"`
	CurrentLocation *GeoPoint          `bson:"currentLocation,omitempty" json:"currentLocation,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// PublicUser is the projection returned to clients. It never carries the hash.
type PublicUser struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	Town       string `json:"town"`
	EmpID      string `json:"empId,omitempty"`
	Department string `json:"department,omitempty"`
}

// EmployeeSummary is what admins see when picking an assignee.
type EmployeeSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	EmpID      string `json:"empId"`
	Department string `json:"department"`
	IsOnDuty   bool   `json:"isOnDuty"`
}

// Reporter is the contact card of the citizen who filed a complaint.
type Reporter struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// ErrPasswordTooLong is returned by HashPassword for passwords over
// MaxPasswordBytes.
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

func (u *User) HashPassword() error {
	if len(u.Password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashed)
	return nil
}

func (u *User) ComparePassword(candidate string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(candidate))
	return err == nil
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID.Hex(),
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		Town:       u.Town,
		EmpID:      u.EmpID,
		Department: u.Department,
	}
}

func (u *User) Summary() EmployeeSummary {
	return EmployeeSummary{
		ID:         u.ID.Hex(),
		Name:       u.Name,
		Email:      u.Email,
		EmpID:      u.EmpID,
		Department: u.Department,
		IsOnDuty:   u.IsOnDuty,
	}
}

func (u *User) Reporter() Reporter {
	return Reporter{ID: u.ID.Hex(), Name: u.Name, Email: u.Email}
}
