package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultPasswordLength 默认密码长度
const DefaultPasswordLength = 10

const (
	passwordLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	passwordDigits  = "0123456789"
)

// PasswordGenerator 生成一次性密码
type PasswordGenerator func() (string, error)

// NewPasswordGenerator 返回由字母和数字组成的密码生成器
//
// 每个密码至少包含一个数字。
func NewPasswordGenerator(length int) PasswordGenerator {
	if length < 2 {
		length = DefaultPasswordLength
	}
	alphabet := passwordLetters + passwordDigits
	return func() (string, error) {
		buf := make([]byte, length)
		for i := range buf {
			c, err := pick(alphabet)
			if err != nil {
				return "", err
			}
			buf[i] = c
		}

		// 保证至少一个数字
		pos, err := rand.Int(rand.Reader, big.NewInt(int64(length)))
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		d, err := pick(passwordDigits)
		if err != nil {
			return "", err
		}
		buf[pos.Int64()] = d
		return string(buf), nil
	}
}

func pick(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("generate password: %w", err)
	}
	return alphabet[n.Int64()], nil
}
