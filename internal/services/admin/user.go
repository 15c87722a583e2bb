package admin

import (
	"context"

	"github.com/3Eeeecho/go-tgdisk/internal/repositories"
)

// Usage 所有者的配额使用情况
type Usage struct {
	UsedBytes  int64 `json:"usedBytes"`
	QuotaBytes int64 `json:"quotaBytes"`
}

type UserService interface {
	GetUsage(ctx context.Context, ownerID uint64) (*Usage, error)
}

type userService struct {
	users        repositories.UserRepository
	defaultQuota int64
}

func NewUserService(users repositories.UserRepository, defaultQuota int64) UserService {
	return &userService{users: users, defaultQuota: defaultQuota}
}

func (s *userService) GetUsage(ctx context.Context, ownerID uint64) (*Usage, error) {
	u, err := s.users.GetOrCreate(ctx, ownerID, s.defaultQuota)
	if err != nil {
		return nil, err
	}
	return &Usage{UsedBytes: u.UsedBytes, QuotaBytes: u.QuotaBytes}, nil
}
