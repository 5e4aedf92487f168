package services

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Gopher0727/Messenger/internal/models"
	"github.com/Gopher0727/Messenger/internal/repositories"
	"github.com/Gopher0727/Messenger/pkg/utils"
)

// AuthService 认证服务
// 消息域的 AuthContext 由这里签发的 token 产生：
// 角色写入用户行，签发时展开为权限点放进 claims
type AuthService struct {
	userRepo repositories.IUserRepository
	tokens   *utils.TokenManager
}

// NewAuthService 创建认证服务实例
func NewAuthService(userRepo repositories.IUserRepository, tokens *utils.TokenManager) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserDTO 用户数据传输对象
type UserDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Status   string `json:"status"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	Token string   `json:"token"`
	User  *UserDTO `json:"user"`
}

// 角色到权限点的展开，签发 token 时写入 claims
var rolePermissions = map[string][]string{
	"admin": {"messages:manage", "groups:manage"},
}

func permissionsFor(roles []string) []string {
	var perms []string
	for _, role := range roles {
		perms = append(perms, rolePermissions[role]...)
	}
	return perms
}

func toUserDTO(u *models.User) *UserDTO {
	return &UserDTO{
		ID:       u.ID,
		Username: u.UserName,
		Email:    u.Email,
		Nickname: u.Nickname,
		Status:   u.Status,
	}
}

// Register 注册用户
func (s *AuthService) Register(req *RegisterRequest) (*AuthResponse, error) {
	if !utils.ValidateUserName(req.Username) {
		return nil, NewValidationError("invalid username format")
	}
	if !utils.ValidateEmail(req.Email) {
		return nil, NewValidationError("invalid email format")
	}
	if !utils.ValidatePassword(req.Password) {
		return nil, NewValidationError("password too short")
	}

	// 检查用户名和邮箱是否已被占用
	if _, err := s.userRepo.GetByUserName(req.Username); err == nil {
		return nil, NewConflictError("username already exists")
	}
	if _, err := s.userRepo.GetByEmail(req.Email); err == nil {
		return nil, NewConflictError("email already exists")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, wrapStorageError("Register", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		UserName:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Nickname:     req.Username,
		Roles:        "member",
		Status:       "offline",
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, wrapStorageError("Register", err)
	}

	return s.respondWithToken(user)
}

// Login 登录用户
func (s *AuthService) Login(req *LoginRequest) (*AuthResponse, error) {
	user, err := s.userRepo.GetByUserName(req.Username)
	if err != nil {
		return nil, NewForbiddenError("username or password incorrect")
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return nil, NewForbiddenError("username or password incorrect")
	}

	if err := s.userRepo.UpdateStatus(user.ID, "online"); err != nil {
		return nil, wrapStorageError("Login", err)
	}
	user.Status = "online"

	return s.respondWithToken(user)
}

// Logout 登出用户
func (s *AuthService) Logout(userID string) error {
	if err := s.userRepo.UpdateStatus(userID, "offline"); err != nil {
		return wrapStorageError("Logout", err)
	}
	return nil
}

func (s *AuthService) respondWithToken(user *models.User) (*AuthResponse, error) {
	roles := strings.Split(user.Roles, ",")
	token, err := s.tokens.GenerateToken(user.ID, user.UserName, roles, permissionsFor(roles))
	if err != nil {
		return nil, wrapStorageError("respondWithToken", err)
	}
	return &AuthResponse{Token: token, User: toUserDTO(user)}, nil
}
