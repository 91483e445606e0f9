package service

import (
	"errors"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"memchat/model"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password must be 8 to 64 characters and mix at least three of digits, lower case, upper case and symbols")
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func IsValidPassword(password string) bool {
	// 密码长度
	const minLen = 8
	const maxLen = 64
	if len(password) < minLen || len(password) > maxLen {
		return false
	}

	hasNumber, hasLower, hasUpper, hasSpecial := false, false, false, false
	// 字符类型检查
	for _, char := range password {
		switch {
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	// 至少包含数字、小写字母、大写字母、特殊字符中的三种
	return boolToInt(hasNumber)+boolToInt(hasLower)+boolToInt(hasUpper)+boolToInt(hasSpecial) >= 3
}

type UserService struct {
	Tokens *TokenService
}

type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (service *UserService) Register(user *User) error {
	if !IsValidPassword(user.Password) {
		return ErrWeakPassword
	}

	// 唯一性检查
	exists, err := model.UserExists(user.Username, user.Email)
	if err != nil {
		logger.Warnf("failed to check user %s: %s", user.Username, err)
		return errors.New("internal server error")
	}
	if exists {
		return ErrUserExists
	}

	// 密码加密
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.New("internal server error")
	}

	// 存储用户信息
	newUser := &model.User{
		Username: user.Username,
		Email:    user.Email,
		Password: string(hashedPassword),
		Digest:   true,
	}
	if err := model.CreateUser(newUser); err != nil {
		logger.Warnf("failed to create user %s: %s", user.Username, err)
		return errors.New("internal server error")
	}
	return nil
}

func (service *UserService) Login(user *User) (string, error) {
	// 验证用户名和密码
	registeredUser, err := model.GetUserByUsername(user.Username)
	if errors.Is(err, model.ErrUserNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", errors.New("failed to get user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(registeredUser.Password), []byte(user.Password)); err != nil {
		return "", ErrInvalidCredentials
	}

	// 生成会话令牌
	token, err := service.Tokens.CreateToken(registeredUser.ID, registeredUser.Username)
	if err != nil {
		logger.Warnf("Error generating token: %v", err)
		return "", errors.New("failed to generate token")
	}

	return token.AccessToken, nil
}
