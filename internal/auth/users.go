package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"outpass.org/internal/ids"
)

// Users wraps a UserStore with validation and secret hashing. Plaintext
// passwords and PINs never reach the store.
type Users struct {
	store UserStore
}

// NewUsers constructs the user service.
func NewUsers(store UserStore) (*Users, error) {
	if store == nil {
		return nil, errors.New("user store is required")
	}
	return &Users{store: store}, nil
}

// Create registers a new active user with hashed credentials.
func (s *Users) Create(ctx context.Context, rank, firstName, lastName, password, pin string) (User, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return User{}, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}
	password = strings.TrimSpace(password)
	pin = strings.TrimSpace(pin)
	if password == "" || pin == "" {
		return User{}, fmt.Errorf("%w: password and pin are required", ErrInvalidInput)
	}
	passwordHash, err := HashSecret(password)
	if err != nil {
		return User{}, err
	}
	pinHash, err := HashSecret(pin)
	if err != nil {
		return User{}, err
	}
	return s.store.CreateUser(ctx, User{
		ID:           ids.New(),
		Rank:         strings.TrimSpace(rank),
		FirstName:    firstName,
		LastName:     lastName,
		Active:       true,
		PasswordHash: passwordHash,
		PINHash:      pinHash,
	})
}

// Get returns one user by id.
func (s *Users) Get(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, id)
}

// Update applies field changes, hashing any replacement secrets.
func (s *Users) Update(ctx context.Context, id string, upd UserUpdate) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if upd.FirstName != nil {
		trimmed := strings.TrimSpace(*upd.FirstName)
		if trimmed == "" {
			return User{}, fmt.Errorf("%w: first name is required", ErrInvalidInput)
		}
		upd.FirstName = &trimmed
	}
	if upd.LastName != nil {
		trimmed := strings.TrimSpace(*upd.LastName)
		if trimmed == "" {
			return User{}, fmt.Errorf("%w: last name is required", ErrInvalidInput)
		}
		upd.LastName = &trimmed
	}
	if upd.Rank != nil {
		trimmed := strings.TrimSpace(*upd.Rank)
		upd.Rank = &trimmed
	}
	if upd.Password != nil {
		pw := strings.TrimSpace(*upd.Password)
		if pw == "" {
			return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
		}
		hash, err := HashSecret(pw)
		if err != nil {
			return User{}, err
		}
		upd.Password = &hash
	}
	if upd.PIN != nil {
		pin := strings.TrimSpace(*upd.PIN)
		if pin == "" {
			return User{}, fmt.Errorf("%w: pin is required", ErrInvalidInput)
		}
		hash, err := HashSecret(pin)
		if err != nil {
			return User{}, err
		}
		upd.PIN = &hash
	}
	return s.store.UpdateUser(ctx, id, upd)
}

// Delete removes the user. Stores annotate rather than delete any
// historical sign-out rows that reference them.
func (s *Users) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.DeleteUser(ctx, id)
}

// VerifyPassword checks the login credential for an active user. A missing
// user, a deactivated user and a wrong password all report false.
func (s *Users) VerifyPassword(ctx context.Context, id, password string) (User, bool, error) {
	user, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	if !user.Active {
		return User{}, false, nil
	}
	if !VerifySecret(user.PasswordHash, password) {
		return User{}, false, nil
	}
	return user, true, nil
}

// VerifyPIN re-proves the caller's identity independent of the session.
func (s *Users) VerifyPIN(ctx context.Context, id, pin string) (bool, error) {
	user, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !user.Active {
		return false, nil
	}
	return VerifySecret(user.PINHash, pin), nil
}
