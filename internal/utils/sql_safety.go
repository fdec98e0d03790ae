package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var sortFieldPattern = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)

// ValidateSortField 验证排序字段格式, 防止 SQL 注入
func ValidateSortField(field string) error {
	if field == "" {
		return errors.New("sort field cannot be empty")
	}
	if !sortFieldPattern.MatchString(field) {
		return errors.New("invalid sort field format")
	}
	return nil
}

// ValidateSortOrder 验证排序方向
func ValidateSortOrder(order string) error {
	upperOrder := strings.ToUpper(strings.TrimSpace(order))
	if upperOrder != "ASC" && upperOrder != "DESC" {
		return errors.New("sort order must be ASC or DESC")
	}
	return nil
}

// SortClause 生成 ORDER BY 子句. 字段必须在白名单内(API 字段名到列名的映射),
// 空字段和空方向使用默认值.
func SortClause(field, order string, allowed map[string]string, defaultField string) (string, error) {
	if field == "" {
		field = defaultField
	}
	if err := ValidateSortField(field); err != nil {
		return "", err
	}
	column, ok := allowed[field]
	if !ok {
		return "", fmt.Errorf("cannot sort by %q", field)
	}
	if order == "" {
		order = "desc"
	}
	if err := ValidateSortOrder(order); err != nil {
		return "", err
	}
	return column + " " + strings.ToUpper(strings.TrimSpace(order)), nil
}
