package services

import (
	"errors"

	"gorm.io/gorm"
)

// 领域错误全集，调用方用 errors.Is 判定
// 不在这个集合里的错误一律视为存储层失败，可重试；领域错误不可重试
var (
	ErrSelfReference        = errors.New("cannot create a relationship with yourself")
	ErrBlocked              = errors.New("interaction is blocked between these users")
	ErrAlreadyFollowing     = errors.New("already following this user")
	ErrAlreadyBlocked       = errors.New("user is already blocked")
	ErrAlreadyConnected     = errors.New("users are already connected")
	ErrPendingRequestExists = errors.New("a pending connection request already exists")
	ErrNotFollowing         = errors.New("not following this user")
	ErrNotBlocked           = errors.New("user is not blocked")
	ErrNotConnected         = errors.New("users are not connected")
	ErrNotPending           = errors.New("connection is not pending")
	ErrUserNotFound         = errors.New("user not found")
	ErrConnectionNotFound   = errors.New("connection not found")
)

// IsDomainError 是否属于领域规则失败（区别于存储失败）
func IsDomainError(err error) bool {
	for _, domainErr := range []error{
		ErrSelfReference,
		ErrBlocked,
		ErrAlreadyFollowing,
		ErrAlreadyBlocked,
		ErrAlreadyConnected,
		ErrPendingRequestExists,
		ErrNotFollowing,
		ErrNotBlocked,
		ErrNotConnected,
		ErrNotPending,
		ErrUserNotFound,
		ErrConnectionNotFound,
	} {
		if errors.Is(err, domainErr) {
			return true
		}
	}
	return false
}

// translateDuplicate 把提交时的唯一键冲突映射为对应的领域错误
// 并发下两个事务同时通过了存在性检查时，约束是最后一道防线
func translateDuplicate(err, domainErr error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domainErr
	}
	return err
}
