package workflow

import (
	"context"
	"errors"

	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/mmdatafocus/warehouse_backend/utils"
	"github.com/sirupsen/logrus"
)

/*
caches:
	User:$id (no password hash)
	RevokedToken:$sha256(token)
*/

type Accounts struct {
	store  models.UserStore
	logger *logrus.Logger
}

func NewAccounts(store models.UserStore, logger *logrus.Logger) *Accounts {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Accounts{store: store, logger: logger}
}

var errInvalidCredentials = models.NewUnauthorizedError("invalid username or password")

func (a *Accounts) Login(ctx context.Context, input *models.LoginInput) (*models.LoginInfo, error) {
	if fields := utils.ValidateStruct(input); len(fields) > 0 {
		return nil, models.NewValidationError("username and password are required", fields)
	}
	user, err := a.store.GetUserByUsername(ctx, input.Username)
	if errors.Is(err, models.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := utils.ComparePassword(user.Password, input.Password); err != nil {
		return nil, errInvalidCredentials
	}

	token, err := utils.JwtGenerate(user.ID, user.Username, string(user.Role))
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedis(user, user.ID); err != nil {
		config.LogError(a.logger, "accounts.go", "Login", "StoreRedis", user.ID, err)
	}
	a.logger.WithFields(logrus.Fields{"field": "Accounts", "user_id": user.ID}).Info("user logged in")
	return &models.LoginInfo{Message: "Login successful", Token: token, User: user}, nil
}

// Logout revokes the token for the rest of its lifetime.
func (a *Accounts) Logout(ctx context.Context, token string) error {
	claims, err := utils.ParseClaims(token)
	if err != nil {
		return models.NewUnauthorizedError("invalid token")
	}
	return utils.RevokeToken(token, claims.TokenTTL())
}

func (a *Accounts) CreateUser(ctx context.Context, input *models.NewUser) (*models.User, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username: input.Username,
		Email:    input.Email,
		Password: hashed,
		Role:     input.Role,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	a.logger.WithFields(logrus.Fields{"field": "Accounts", "user_id": user.ID, "role": user.Role}).Info("user created")
	return user, nil
}

// EnsureAdmin creates the admin account, or resets its password, email and role if it exists.
func (a *Accounts) EnsureAdmin(ctx context.Context, input *models.NewUser) (*models.User, bool, error) {
	input.Role = models.UserRoleAdmin
	if err := input.Validate(); err != nil {
		return nil, false, err
	}
	existing, err := a.store.GetUserByUsername(ctx, input.Username)
	if errors.Is(err, models.ErrNotFound) {
		user, err := a.CreateUser(ctx, input)
		return user, true, err
	}
	if err != nil {
		return nil, false, err
	}
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, false, err
	}
	existing.Email = input.Email
	existing.Password = hashed
	existing.Role = models.UserRoleAdmin
	if err := a.store.UpdateUser(ctx, existing); err != nil {
		return nil, false, err
	}
	_ = utils.RemoveRedisItem[models.User](existing.ID)
	return existing, false, nil
}

func (a *Accounts) GetUser(ctx context.Context, id int) (*models.User, error) {
	cached, err := utils.RetrieveRedis[models.User](id)
	if err != nil {
		config.LogError(a.logger, "accounts.go", "GetUser", "RetrieveRedis", id, err)
	}
	if cached != nil {
		return cached, nil
	}
	user, err := a.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedis(user, user.ID); err != nil {
		config.LogError(a.logger, "accounts.go", "GetUser", "StoreRedis", id, err)
	}
	return user, nil
}

func (a *Accounts) ListUsers(ctx context.Context) ([]*models.User, error) {
	return a.store.ListUsers(ctx)
}
