package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

const (
	DefaultPhoto      = "default.jpg"
	MinPasswordLength = 8
	ResetTokenTTL     = 10 * time.Minute
)

// BcryptCost is a variable so tests can lower it.
var BcryptCost = 12

type User struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name                 string             `bson:"name" json:"name" validate:"required,min=3"`
	Email                string             `bson:"email" json:"email" validate:"required,email"`
	Role                 Role               `bson:"role" json:"role" validate:"oneof=user guide lead-guide admin"`
	Photo                string             `bson:"photo" json:"photo"`
	Password             string             `bson:"password" json:"-" validate:"required"`
	PasswordChangedAt    *time.Time         `bson:"passwordChangedAt,omitempty" json:"passwordChangedAt,omitempty"`
	PasswordResetToken   string             `bson:"passwordResetToken,omitempty" json:"-"`
	PasswordResetExpires *time.Time         `bson:"passwordResetExpires,omitempty" json:"-"`
	Active               bool               `bson:"active" json:"-"`
}

// UserSummary is what gets embedded when a document references a user.
type UserSummary struct {
	ID    primitive.ObjectID `bson:"_id" json:"id"`
	Name  string             `bson:"name" json:"name"`
	Email string             `bson:"email,omitempty" json:"email,omitempty"`
	Photo string             `bson:"photo,omitempty" json:"photo,omitempty"`
	Role  Role               `bson:"role,omitempty" json:"role,omitempty"`
}

func (u *User) BeforeSave(isNew bool) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Name = strings.TrimSpace(u.Name)
	if isNew {
		if u.Role == "" {
			u.Role = RoleUser
		}
		u.Active = true
	}
	if u.Photo == "" {
		u.Photo = DefaultPhoto
	}
	return nil
}

// SetPassword checks the pair, stores the bcrypt hash and, for existing
// users, records the change one second in the past so a token issued right
// after the change stays valid.
func (u *User) SetPassword(password, confirm string) error {
	var msgs []string
	if password == "" {
		msgs = append(msgs, "Please provide a password")
	} else if len(password) < MinPasswordLength {
		msgs = append(msgs, fmt.Sprintf("Password must have at least %d characters", MinPasswordLength))
	}
	if confirm == "" {
		msgs = append(msgs, "Please confirm your password")
	} else if password != confirm {
		msgs = append(msgs, "Passwords are not the same!")
	}
	if len(msgs) > 0 {
		return newValidationError(msgs...)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.Password = string(hash)
	if !u.ID.IsZero() {
		changed := time.Now().Add(-time.Second).UTC()
		u.PasswordChangedAt = &changed
	}
	return nil
}

func (u *User) CorrectPassword(candidate string) bool {
	if u.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(candidate)) == nil
}

// ChangedPasswordAfter reports whether the password changed after a token
// issued at iat.
func (u *User) ChangedPasswordAfter(iat time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	changed := float64(u.PasswordChangedAt.UnixMilli()) / 1000
	return float64(iat.Unix()) < changed
}

// CreatePasswordResetToken stores the hash of a fresh token and returns the
// plain token for the reset email.
func (u *User) CreatePasswordResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reset token: %w", err)
	}
	token := hex.EncodeToString(buf)
	expires := time.Now().Add(ResetTokenTTL).UTC()
	u.PasswordResetToken = HashToken(token)
	u.PasswordResetExpires = &expires
	return token, nil
}

func (u *User) ClearPasswordReset() {
	u.PasswordResetToken = ""
	u.PasswordResetExpires = nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Photo: u.Photo, Role: u.Role}
}

func (u *User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
