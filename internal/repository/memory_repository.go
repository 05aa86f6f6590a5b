package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/materna-health/materna-backend/internal/models"
)

// MemoryUserRepository is an in-memory UserRepository with the same
// semantics as the GORM implementation (upsert on email, atomic field
// updates). It backs the lifecycle engine tests and local experiments.
type MemoryUserRepository struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*models.User
	byEmail map[string]uuid.UUID
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(r.users[id]), nil
}

func (r *MemoryUserRepository) FindByIdentifier(_ context.Context, identifier string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byEmail[identifier]; ok {
		return copyUser(r.users[id]), nil
	}
	for _, u := range r.users {
		if u.Phone != "" && u.Phone == identifier {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (r *MemoryUserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byEmail[user.Email]; ok {
		existing := r.users[existingID]
		// A verified record is never downgraded by a later signup.
		if existing.IsEmailVerified {
			return ErrStale
		}
		// Upsert keyed on email: refresh profile and pending-code fields.
		existing.Name = user.Name
		existing.Phone = user.Phone
		existing.Age = user.Age
		existing.LastPeriodDate = user.LastPeriodDate
		existing.Password = user.Password
		existing.EmailVerificationToken = user.EmailVerificationToken
		existing.EmailTokenExpires = user.EmailTokenExpires
		existing.UpdatedAt = time.Now()
		*user = *copyUser(existing)
		return nil
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = copyUser(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *MemoryUserRepository) Update(_ context.Context, id uuid.UUID, fields map[string]interface{}) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}

	applyFields(u, fields)
	return copyUser(u), nil
}

func (r *MemoryUserRepository) UpdateGuarded(_ context.Context, id uuid.UUID, guard, fields map[string]interface{}) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !guardHolds(u, guard) {
		return nil, ErrStale
	}

	applyFields(u, fields)
	return copyUser(u), nil
}

func applyFields(u *models.User, fields map[string]interface{}) {
	for column, value := range fields {
		switch strings.ToLower(column) {
		case "name":
			u.Name = value.(string)
		case "phone":
			u.Phone = value.(string)
		case "age":
			u.Age = value.(int)
		case "password":
			u.Password = value.(string)
		case "avatar_url":
			u.AvatarURL = value.(string)
		case "last_period_date":
			u.LastPeriodDate = asTimePtr(value)
		case "is_email_verified":
			u.IsEmailVerified = value.(bool)
		case "email_verification_token":
			u.EmailVerificationToken = asStringPtr(value)
		case "email_token_expires":
			u.EmailTokenExpires = asTimePtr(value)
		case "reset_token":
			u.ResetToken = asStringPtr(value)
		case "reset_token_expires":
			u.ResetTokenExpires = asTimePtr(value)
		}
	}
	u.UpdatedAt = time.Now()
}

func guardHolds(u *models.User, guard map[string]interface{}) bool {
	for column, value := range guard {
		switch strings.ToLower(column) {
		case "is_email_verified":
			if u.IsEmailVerified != value.(bool) {
				return false
			}
		case "email_verification_token":
			if !strPtrEq(u.EmailVerificationToken, asStringPtr(value)) {
				return false
			}
		case "reset_token":
			if !strPtrEq(u.ResetToken, asStringPtr(value)) {
				return false
			}
		}
	}
	return true
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func asStringPtr(v interface{}) *string {
	switch s := v.(type) {
	case nil:
		return nil
	case string:
		return &s
	case *string:
		return s
	}
	return nil
}

func asTimePtr(v interface{}) *time.Time {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return &t
	case *time.Time:
		return t
	}
	return nil
}

func copyUser(u *models.User) *models.User {
	cp := *u
	cp.LastPeriodDate = copyTime(u.LastPeriodDate)
	cp.EmailTokenExpires = copyTime(u.EmailTokenExpires)
	cp.ResetTokenExpires = copyTime(u.ResetTokenExpires)
	cp.EmailVerificationToken = copyString(u.EmailVerificationToken)
	cp.ResetToken = copyString(u.ResetToken)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
