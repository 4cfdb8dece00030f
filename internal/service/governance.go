package service

import "github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"

// FilterGoverned 保持顺序地筛选受管邮箱
func FilterGoverned(entities []domain.InventoryEntity) []domain.InventoryEntity {
	governed := make([]domain.InventoryEntity, 0, len(entities))
	for _, e := range entities {
		if domain.IsGoverned(e) {
			governed = append(governed, e)
		}
	}
	return governed
}

// IsMailboxGoverned 判断地址是否已是受管邮箱
//
// 精确匹配 Name，区分大小写，不做任何规范化。
func IsMailboxGoverned(governed []domain.InventoryEntity, address string) bool {
	for _, e := range governed {
		if e.Name == address {
			return true
		}
	}
	return false
}
