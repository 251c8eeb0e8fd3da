package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"rag-qa-go/internal/model"
	"rag-qa-go/internal/repository"
	"rag-qa-go/pkg/hash"
	"rag-qa-go/pkg/log"
	"rag-qa-go/pkg/token"
)

const minPasswordLength = 6

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	// Register 创建用户并直接签发 access token。
	Register(email, password string) (string, error)
	Login(email, password string) (string, error)
	GetProfile(userID uint) (*model.User, error)
	// Logout 将 token 的 jti 加入黑名单，直到 token 自然过期。
	Logout(ctx context.Context, claims *token.CustomClaims) error
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	blacklist  repository.TokenBlacklist
	jwtManager *token.JWTManager
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, blacklist repository.TokenBlacklist, jwtManager *token.JWTManager) UserService {
	return &userService{
		userRepo:   userRepo,
		blacklist:  blacklist,
		jwtManager: jwtManager,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email %q", model.ErrValidation, email)
	}
	return email, nil
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(email, password string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", model.ErrValidation, minPasswordLength)
	}

	// 1. 检查邮箱是否已注册
	_, err = s.userRepo.FindByEmail(email)
	if err == nil {
		return "", fmt.Errorf("%w: email already registered", model.ErrConflict)
	}
	if !errors.Is(err, model.ErrNotFound) {
		return "", err
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return "", err
	}

	// 3. 将用户存入数据库以生成ID
	newUser := &model.User{
		Email:    email,
		Password: hashedPassword,
		Role:     "USER",
		IsActive: true,
	}
	if err := s.userRepo.Create(newUser); err != nil {
		return "", err
	}
	log.Infof("[UserService] 用户注册成功, userID: %d", newUser.ID)

	return s.jwtManager.GenerateToken(newUser.ID, newUser.Role)
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", fmt.Errorf("%w: invalid credentials", model.ErrUnauthorized)
		}
		return "", err
	}
	if !user.IsActive || !hash.CheckPasswordHash(password, user.Password) {
		return "", fmt.Errorf("%w: invalid credentials", model.ErrUnauthorized)
	}
	return s.jwtManager.GenerateToken(user.ID, user.Role)
}

// GetProfile 根据用户 ID 获取用户详细信息。
func (s *userService) GetProfile(userID uint) (*model.User, error) {
	return s.userRepo.FindByID(userID)
}

func (s *userService) Logout(ctx context.Context, claims *token.CustomClaims) error {
	if claims == nil || claims.ID == "" {
		return fmt.Errorf("%w: token has no id", model.ErrUnauthorized)
	}
	return s.blacklist.Add(ctx, claims.ID, claims.TTL())
}
