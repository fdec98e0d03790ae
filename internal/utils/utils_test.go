package utils_test

import (
	"errors"
	"testing"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var documentSortFields = map[string]string{
	"created_at": "created_at",
	"title":      "title",
}

// TestSortClause 测试排序子句生成
func TestSortClause(t *testing.T) {
	clause, err := utils.SortClause("", "", documentSortFields, "created_at")
	require.NoError(t, err)
	assert.Equal(t, "created_at DESC", clause)

	clause, err = utils.SortClause("title", "asc", documentSortFields, "created_at")
	require.NoError(t, err)
	assert.Equal(t, "title ASC", clause)

	_, err = utils.SortClause("status", "asc", documentSortFields, "created_at")
	assert.Error(t, err)

	_, err = utils.SortClause("title; DROP TABLE documents", "asc", documentSortFields, "created_at")
	assert.Error(t, err)

	_, err = utils.SortClause("title", "sideways", documentSortFields, "created_at")
	assert.Error(t, err)
}

// TestValidateID 测试 ID 校验
func TestValidateID(t *testing.T) {
	assert.NoError(t, utils.ValidateID("wf-3f1c2a"))
	assert.True(t, errors.Is(utils.ValidateID(""), utils.ErrEmptyID))
	assert.True(t, errors.Is(utils.ValidateID("../etc"), utils.ErrInvalidIDFormat))
	assert.True(t, errors.Is(utils.ValidateID(string(make([]byte, 65))), utils.ErrIDTooLong))
}

// TestValidateName 测试名称校验
func TestValidateName(t *testing.T) {
	assert.NoError(t, utils.ValidateName("Budget request FY27"))
	assert.Equal(t, utils.ErrEmptyName, utils.ValidateName("   "))
	assert.Equal(t, utils.ErrDangerousChars, utils.ValidateName("<script>alert(1)</script>"))
}

// TestNormalizeCode 测试部门编码规范化
func TestNormalizeCode(t *testing.T) {
	out, err := utils.NormalizeCode("  fin-01 ", 32)
	require.NoError(t, err)
	assert.Equal(t, "FIN-01", out)

	out, err = utils.NormalizeCode("   ", 32)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = utils.NormalizeCode("toolong", 3)
	assert.Equal(t, utils.ErrCodeTooLong, err)
	_, err = utils.NormalizeCode("a & b", 32)
	assert.Equal(t, utils.ErrInvalidCode, err)
}
