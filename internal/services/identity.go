package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/relation-engine/relation-engine/internal/repository"
)

// IdentityService 把外部传入的用户引用解析成规范标识
// 引用可以是 uuid 字符串，也可以是用户名；解析失败返回 ErrUserNotFound，
// 绝不把未知引用当成新标识继续往下走
type IdentityService struct {
	userRepo *repository.UserRepository
}

func NewIdentityService(userRepo *repository.UserRepository) *IdentityService {
	return &IdentityService{userRepo: userRepo}
}

func (s *IdentityService) Resolve(ctx context.Context, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		user, err := s.userRepo.GetByID(ctx, id)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to resolve user reference: %w", err)
		}
		if user == nil || !user.IsActive {
			return uuid.Nil, ErrUserNotFound
		}
		return user.ID, nil
	}

	user, err := s.userRepo.GetByUsername(ctx, ref)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve user reference: %w", err)
	}
	if user == nil || !user.IsActive {
		return uuid.Nil, ErrUserNotFound
	}
	return user.ID, nil
}

// ResolvePair 解析一对引用，任一失败整个操作失败
func (s *IdentityService) ResolvePair(ctx context.Context, aRef, bRef string) (uuid.UUID, uuid.UUID, error) {
	a, err := s.Resolve(ctx, aRef)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	b, err := s.Resolve(ctx, bRef)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return a, b, nil
}
