package repositories

import (
	"errors"

	"gorm.io/gorm"

	"github.com/Gopher0727/Messenger/internal/models"
)

// ErrRecordNotFound 供上层判断行缺失，隔离 gorm 细节
var ErrRecordNotFound = gorm.ErrRecordNotFound

// IUserRepository 用户仓储接口
type IUserRepository interface {
	Create(user *models.User) error
	GetByID(id string) (*models.User, error)
	GetByUserName(username string) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByIDs(ids []string) ([]models.User, error)
	UpdateStatus(id string, status string) error
}

// UserRepository 用户仓储
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储实例
func NewUserRepository(db *gorm.DB) IUserRepository {
	return &UserRepository{db: db}
}

// Create 创建用户
func (r *UserRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID 根据ID获取用户，软删除用户视为不存在
func (r *UserRepository) GetByID(id string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUserName 根据用户名获取用户
func (r *UserRepository) GetByUserName(username string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail 根据邮箱获取用户
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByIDs 批量获取用户，缺失的ID直接忽略
func (r *UserRepository) GetByIDs(ids []string) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&users).Error
	return users, err
}

// UpdateStatus 更新用户在线状态
func (r *UserRepository) UpdateStatus(id string, status string) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("status", status).Error
}

// IsNotFound 是否为行缺失错误
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
