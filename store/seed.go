package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civicconnect-be/models"

	"go.uber.org/zap"
)

type demoAccount struct {
	user     models.User
	password string
}

func demoAccounts() []demoAccount {
	return []demoAccount{
		{models.User{Name: "John User", Email: "user@example.com", Role: models.RoleCitizen}, "user123"},
		{models.User{Name: "Jane User", Email: "jane@example.com", Role: models.RoleCitizen}, "user123"},
		{models.User{Name: "Admin Officer", Email: "admin@example.com", Role: models.RoleAdmin, Town: "Downtown"}, "admin123"},
		{models.User{Name: "Field Worker", Email: "employee@example.com", Role: models.RoleEmployee, EmpID: "EMP-001", Department: "Roads"}, "employee123"},
	}
}

// SeedDemo creates the demo accounts that do not exist yet. Existing
// accounts are left untouched.
func SeedDemo(ctx context.Context, users Users, log *zap.Logger) error {
	for _, acct := range demoAccounts() {
		_, err := users.FindUserByEmail(ctx, acct.user.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("seed lookup %s: %w", acct.user.Email, err)
		}

		u := acct.user
		u.Password = acct.password
		if err := u.HashPassword(); err != nil {
			return fmt.Errorf("seed hash: %w", err)
		}
		now := time.Now()
		u.CreatedAt, u.UpdatedAt = now, now
		err = users.CreateUser(ctx, &u)
		if errors.Is(err, ErrDuplicateEmpID) {
			log.Warn("demo employee id taken, skipping", zap.String("email", u.Email), zap.String("emp_id", u.EmpID))
			continue
		}
		if err != nil && !errors.Is(err, ErrDuplicateEmail) {
			return fmt.Errorf("seed create %s: %w", u.Email, err)
		}
		log.Info("seeded demo account", zap.String("email", u.Email), zap.String("role", string(u.Role)))
	}
	return nil
}
