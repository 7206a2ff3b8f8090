package auth

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Coordinator is one entry of the coordinator directory. PasswordHash is a
// bcrypt hash.
type Coordinator struct {
	Email        string `mapstructure:"email" json:"email"`
	Name         string `mapstructure:"name" json:"name"`
	PasswordHash string `mapstructure:"password_hash" json:"-"`
	Notify       bool   `mapstructure:"notify" json:"notify"`
}

// Directory holds the coordinators allowed to log in.
type Directory struct {
	byEmail map[string]Coordinator
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NewDirectory(coordinators []Coordinator) *Directory {
	d := &Directory{byEmail: make(map[string]Coordinator, len(coordinators))}
	for _, c := range coordinators {
		c.Email = NormalizeEmail(c.Email)
		if c.Email == "" {
			continue
		}
		d.byEmail[c.Email] = c
	}
	return d
}

// Authenticate returns the coordinator for email when password matches.
// Every failure is ErrInvalidCredentials.
func (d *Directory) Authenticate(email, password string) (Coordinator, error) {
	c, ok := d.byEmail[NormalizeEmail(email)]
	if !ok || c.PasswordHash == "" {
		return Coordinator{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return Coordinator{}, ErrInvalidCredentials
	}
	return c, nil
}

// Lookup returns the coordinator registered under email.
func (d *Directory) Lookup(email string) (Coordinator, bool) {
	c, ok := d.byEmail[NormalizeEmail(email)]
	return c, ok
}

// NotifyList returns the coordinators that receive new-request mail,
// sorted by email.
func (d *Directory) NotifyList() []Coordinator {
	var out []Coordinator
	for _, c := range d.byEmail {
		if c.Notify {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// HashPassword returns a bcrypt hash for a directory entry.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
