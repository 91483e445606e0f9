package model

import (
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"memchat/platform"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

var ErrUserNotFound = errors.New("user not found")

// User 表示用户模型
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"type:varchar(255);not null;unique" json:"username"`
	Email     string    `gorm:"type:varchar(255);not null;unique" json:"email"`
	Password  string    `gorm:"type:varchar(255);not null" json:"-"`
	Nickname  string    `json:"nickname"`
	Avatar    string    `json:"avatar"`
	Role      Role      `gorm:"type:varchar(16)" json:"role"`
	Digest    bool      `gorm:"not null" json:"digest"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate 新用户默认为普通角色
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// Key is the identifier conversations and memories are scoped by.
func (u *User) Key() string {
	return strconv.FormatUint(uint64(u.ID), 10)
}

func UserExists(username, email string) (bool, error) {
	var count int64
	err := platform.DB.Model(&User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func CreateUser(user *User) error {
	return platform.DB.Create(user).Error
}

func GetUserByUsername(username string) (*User, error) {
	var user User
	if err := platform.DB.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func GetUserByID(id uint) (*User, error) {
	var user User
	if err := platform.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// DigestRecipients 返回订阅了每日摘要的用户
func DigestRecipients() ([]User, error) {
	var users []User
	err := platform.DB.Where("digest = ? AND email <> ''", true).Order("id").Find(&users).Error
	return users, err
}
