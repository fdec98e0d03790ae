package workflow_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTemplateJSON = `{
	"name": "Invoice approval",
	"department": "Finance",
	"fileTypes": ["PDF", ".docx"],
	"steps": [
		{
			"id": "s1",
			"name": "Manager review",
			"type": "approval",
			"assignTo": {"type": "role", "value": "manager"},
			"deadline": {"type": "fixed", "value": 48}
		},
		{
			"id": "s2",
			"name": "Finance sign-off",
			"type": "sign",
			"assignTo": {"type": "user", "value": ["u-1", "u-2"]},
			"dependencies": ["s1"],
			"notifications": [
				{"event": "step.assigned", "template": "sign-needed", "recipients": {"type": "department", "value": "Finance"}}
			]
		}
	],
	"sla": {"warningThreshold": 4, "autoReassign": true, "backupAssignees": {"manager": "u-9"}}
}`

func mutate(t *testing.T, raw string, fn func(m map[string]interface{})) []byte {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	fn(m)
	out, err := json.Marshal(m)
	require.NoError(t, err)
	return out
}

func step(m map[string]interface{}, i int) map[string]interface{} {
	return m["steps"].([]interface{})[i].(map[string]interface{})
}

// TestValidateTemplate_Valid 测试合法模板的规范化结果
func TestValidateTemplate_Valid(t *testing.T) {
	tpl, errs := workflow.ValidateTemplate([]byte(validTemplateJSON))
	require.Empty(t, errs)
	require.NotNil(t, tpl)

	assert.Equal(t, "Invoice approval", tpl.Name)
	assert.Equal(t, []string{"pdf", "docx"}, tpl.FileTypes)
	assert.True(t, tpl.Active)
	require.Len(t, tpl.Steps, 2)

	s1 := tpl.Steps[0]
	assert.Equal(t, workflow.StepApproval, s1.Type)
	assert.Equal(t, workflow.AssignRole, s1.AssignTo.Kind)
	assert.Equal(t, []string{"manager"}, s1.AssignTo.IDs)
	assert.Equal(t, workflow.FixedDeadline{Hours: 48}, s1.Deadline)

	s2 := tpl.Steps[1]
	assert.Nil(t, s2.Deadline)
	assert.Equal(t, []string{"u-1", "u-2"}, s2.AssignTo.IDs)
	assert.Equal(t, []string{"s1"}, s2.Dependencies)
	require.Len(t, s2.Notifications, 1)
	assert.Equal(t, workflow.AssignDepartment, s2.Notifications[0].Recipients.Kind)

	require.NotNil(t, tpl.SLA)
	assert.Equal(t, "u-9", tpl.SLA.BackupAssignees["manager"])
}

// TestValidateTemplate_MissingDeadlineValue 测试固定截止时间缺少 value 时只报告一个错误
func TestValidateTemplate_MissingDeadlineValue(t *testing.T) {
	raw := mutate(t, validTemplateJSON, func(m map[string]interface{}) {
		delete(step(m, 0)["deadline"].(map[string]interface{}), "value")
	})

	tpl, errs := workflow.ValidateTemplate(raw)
	assert.Nil(t, tpl)
	require.Len(t, errs, 1)
	assert.Equal(t, "steps[0].deadline.value", errs[0].Field)
}

// TestValidateTemplate_DeadlineOutOfRange 测试超出上限的截止小时数被拒绝
func TestValidateTemplate_DeadlineOutOfRange(t *testing.T) {
	raw := mutate(t, validTemplateJSON, func(m map[string]interface{}) {
		step(m, 0)["deadline"] = map[string]interface{}{"type": "fixed", "value": 1e10}
		m["sla"].(map[string]interface{})["warningThreshold"] = 1e10
	})

	tpl, errs := workflow.ValidateTemplate(raw)
	assert.Nil(t, tpl)
	require.True(t, errs.Has("steps[0].deadline.value"), "got %v", errs)
	assert.True(t, errs.Has("sla.warningThreshold"), "got %v", errs)

	raw = mutate(t, validTemplateJSON, func(m map[string]interface{}) {
		step(m, 0)["deadline"] = map[string]interface{}{"type": "fixed", "value": workflow.MaxDeadlineHours}
	})
	_, errs = workflow.ValidateTemplate(raw)
	assert.Empty(t, errs)
}

// TestFixedDeadline_At 测试固定截止时间的计算范围
func TestFixedDeadline_At(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	at, err := workflow.FixedDeadline{Hours: 1.5}.At(start)
	require.NoError(t, err)
	assert.Equal(t, start.Add(90*time.Minute), at)

	for _, hours := range []float64{0, -1, 1e10, math.Inf(1), math.NaN()} {
		_, err := workflow.FixedDeadline{Hours: hours}.At(start)
		assert.Error(t, err, "hours=%v", hours)
	}

	_, err = workflow.NewFixedDeadline(workflow.MaxDeadlineHours + 1)
	assert.Error(t, err)
}

// TestValidateTemplate_DeadlineIgnoresOtherField 测试判别字段之外的字段被忽略
func TestValidateTemplate_DeadlineIgnoresOtherField(t *testing.T) {
	raw := mutate(t, validTemplateJSON, func(m map[string]interface{}) {
		step(m, 0)["deadline"] = map[string]interface{}{"type": "fixed", "value": 12, "formula": 42}
		step(m, 1)["deadline"] = map[string]interface{}{"type": "dynamic", "formula": "document.amount > 1000 ? 24 : 72", "value": "x"}
	})

	tpl, errs := workflow.ValidateTemplate(raw)
	require.Empty(t, errs)
	assert.Equal(t, workflow.FixedDeadline{Hours: 12}, tpl.Steps[0].Deadline)
	assert.Equal(t, workflow.DynamicDeadline{Formula: "document.amount > 1000 ? 24 : 72"}, tpl.Steps[1].Deadline)
}

// TestValidateTemplate_FieldErrors 测试各类字段错误及其路径
func TestValidateTemplate_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]interface{})
		field  string
	}{
		{"missing name", func(m map[string]interface{}) { delete(m, "name") }, "name"},
		{"missing department", func(m map[string]interface{}) { delete(m, "department") }, "department"},
		{"missing steps", func(m map[string]interface{}) { delete(m, "steps") }, "steps"},
		{"empty steps", func(m map[string]interface{}) { m["steps"] = []interface{}{} }, "steps"},
		{"missing step id", func(m map[string]interface{}) { delete(step(m, 0), "id") }, "steps[0].id"},
		{"unknown step type", func(m map[string]interface{}) { step(m, 1)["type"] = "vote" }, "steps[1].type"},
		{"missing assignTo", func(m map[string]interface{}) { delete(step(m, 0), "assignTo") }, "steps[0].assignTo"},
		{"missing assignTo type", func(m map[string]interface{}) {
			delete(step(m, 0)["assignTo"].(map[string]interface{}), "type")
		}, "steps[0].assignTo.type"},
		{"empty assignTo list", func(m map[string]interface{}) {
			step(m, 1)["assignTo"] = map[string]interface{}{"type": "user", "value": []interface{}{}}
		}, "steps[1].assignTo.value"},
		{"numeric assignTo value", func(m map[string]interface{}) {
			step(m, 1)["assignTo"] = map[string]interface{}{"type": "user", "value": 7}
		}, "steps[1].assignTo.value"},
		{"dynamic formula missing", func(m map[string]interface{}) {
			step(m, 0)["deadline"] = map[string]interface{}{"type": "dynamic", "value": 3}
		}, "steps[0].deadline.formula"},
		{"non-numeric fixed value", func(m map[string]interface{}) {
			step(m, 0)["deadline"] = map[string]interface{}{"type": "fixed", "value": "48h"}
		}, "steps[0].deadline.value"},
		{"unknown deadline type", func(m map[string]interface{}) {
			step(m, 0)["deadline"] = map[string]interface{}{"type": "relative", "value": 3}
		}, "steps[0].deadline.type"},
		{"zero required approvals", func(m map[string]interface{}) { step(m, 0)["requiredApprovals"] = 0 }, "steps[0].requiredApprovals"},
		{"fractional required approvals", func(m map[string]interface{}) { step(m, 0)["requiredApprovals"] = 1.5 }, "steps[0].requiredApprovals"},
		{"parallel without count", func(m map[string]interface{}) { step(m, 0)["parallel"] = true }, "steps[0].requiredApprovals"},
		{"condition missing value", func(m map[string]interface{}) {
			step(m, 0)["conditions"] = []interface{}{map[string]interface{}{"field": "amount", "operator": "gt"}}
		}, "steps[0].conditions[0].value"},
		{"condition unknown operator", func(m map[string]interface{}) {
			step(m, 0)["conditions"] = []interface{}{map[string]interface{}{"field": "amount", "operator": "like", "value": 1}}
		}, "steps[0].conditions[0].operator"},
		{"condition step without conditions", func(m map[string]interface{}) { step(m, 0)["type"] = "condition" }, "steps[0].conditions"},
		{"notification without template", func(m map[string]interface{}) {
			delete(step(m, 1)["notifications"].([]interface{})[0].(map[string]interface{}), "template")
		}, "steps[1].notifications[0].template"},
		{"dynamic recipients", func(m map[string]interface{}) {
			n := step(m, 1)["notifications"].([]interface{})[0].(map[string]interface{})
			n["recipients"] = map[string]interface{}{"type": "dynamic", "value": "x"}
		}, "steps[1].notifications[0].recipients.type"},
		{"webhook action without url", func(m map[string]interface{}) {
			step(m, 0)["actions"] = []interface{}{map[string]interface{}{"type": "webhook"}}
		}, "steps[0].actions[0].config.url"},
		{"unknown dependency", func(m map[string]interface{}) { step(m, 1)["dependencies"] = []interface{}{"s9"} }, "steps[1].dependencies[0]"},
		{"self dependency", func(m map[string]interface{}) { step(m, 1)["dependencies"] = []interface{}{"s2"} }, "steps[1].dependencies[0]"},
		{"duplicate step id", func(m map[string]interface{}) { step(m, 1)["id"] = "s1"; delete(step(m, 1), "dependencies") }, "steps[1].id"},
		{"name wrong type", func(m map[string]interface{}) { m["name"] = 5 }, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, errs := workflow.ValidateTemplate(mutate(t, validTemplateJSON, tt.mutate))
			assert.Nil(t, tpl)
			require.NotEmpty(t, errs)
			assert.True(t, errs.Has(tt.field), "expected error on %s, got %v", tt.field, errs)
		})
	}
}

// TestValidateTemplate_CollectsAllErrors 测试一次校验返回全部错误
func TestValidateTemplate_CollectsAllErrors(t *testing.T) {
	raw := mutate(t, validTemplateJSON, func(m map[string]interface{}) {
		delete(m, "name")
		delete(step(m, 0), "name")
		step(m, 1)["assignTo"] = map[string]interface{}{"type": "group", "value": "x"}
	})

	_, errs := workflow.ValidateTemplate(raw)
	assert.True(t, errs.Has("name"))
	assert.True(t, errs.Has("steps[0].name"))
	assert.True(t, errs.Has("steps[1].assignTo.type"))
}

// TestValidateTemplate_TypeErrorsAreIndexed 测试类型错误带数组下标且全部返回
func TestValidateTemplate_TypeErrorsAreIndexed(t *testing.T) {
	raw := mutate(t, validTemplateJSON, func(m map[string]interface{}) {
		step(m, 0)["name"] = 5
		step(m, 1)["id"] = 7
		step(m, 1)["parallel"] = "yes"
		m["sla"].(map[string]interface{})["backupAssignees"] = map[string]interface{}{"manager": 9}
	})

	tpl, errs := workflow.ValidateTemplate(raw)
	assert.Nil(t, tpl)
	messages := map[string]string{}
	for _, fe := range errs {
		_, dup := messages[fe.Field]
		assert.False(t, dup, "duplicate error on %s", fe.Field)
		messages[fe.Field] = fe.Message
	}
	assert.Equal(t, "must be a string", messages["steps[0].name"])
	assert.Equal(t, "must be a string", messages["steps[1].id"])
	assert.Equal(t, "must be a boolean", messages["steps[1].parallel"])
	assert.Equal(t, "must be a string", messages["sla.backupAssignees.manager"])
	assert.NotContains(t, messages, "steps.name")
	assert.NotContains(t, messages, "steps.parallel")

	_, errs = workflow.ValidateTemplate([]byte(`{"name":"x","department":"y","steps":"all"}`))
	require.Len(t, errs, 1)
	assert.Equal(t, "steps", errs[0].Field)
	assert.Equal(t, "must be an array", errs[0].Message)

	_, errs = workflow.ValidateTemplate([]byte(`[1, 2]`))
	require.Len(t, errs, 1)
	assert.Equal(t, "body", errs[0].Field)
}

// TestValidateTemplate_DependencyCycle 测试依赖环检测
func TestValidateTemplate_DependencyCycle(t *testing.T) {
	raw := mutate(t, validTemplateJSON, func(m map[string]interface{}) {
		step(m, 0)["dependencies"] = []interface{}{"s2"}
	})

	_, errs := workflow.ValidateTemplate(raw)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "dependency cycle")
}

// TestValidateTemplate_MalformedJSON 测试非法 JSON
func TestValidateTemplate_MalformedJSON(t *testing.T) {
	_, errs := workflow.ValidateTemplate([]byte(`{"name":`))
	require.Len(t, errs, 1)
	assert.Equal(t, "body", errs[0].Field)

	_, errs = workflow.ValidateTemplate(nil)
	require.Len(t, errs, 1)
	assert.Equal(t, "body", errs[0].Field)
}

// TestTemplate_JSONRoundTrip 测试存储形式可以重新读取并通过校验
func TestTemplate_JSONRoundTrip(t *testing.T) {
	tpl, errs := workflow.ValidateTemplate([]byte(validTemplateJSON))
	require.Empty(t, errs)

	raw, err := json.Marshal(tpl)
	require.NoError(t, err)

	var decoded workflow.Template
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, tpl.Steps, decoded.Steps)
	assert.Empty(t, decoded.Validate())
}

// TestValidateAction 测试工作流操作校验
func TestValidateAction(t *testing.T) {
	req, errs := workflow.ValidateAction([]byte(`{"action":"approve","remarks":" ok ","formData":{"score":5}}`))
	require.Empty(t, errs)
	assert.Equal(t, workflow.ActionApprove, req.Action)
	assert.Equal(t, "ok", req.Remarks)
	assert.Equal(t, float64(5), req.FormData["score"])

	_, errs = workflow.ValidateAction([]byte(`{"remarks":"x"}`))
	require.Len(t, errs, 1)
	assert.Equal(t, "action", errs[0].Field)

	_, errs = workflow.ValidateAction([]byte(`{"action":"escalate"}`))
	require.Len(t, errs, 1)
	assert.Equal(t, "action", errs[0].Field)

	_, errs = workflow.ValidateAction([]byte(`{"action":"approve","formData":"nope"}`))
	assert.True(t, errs.Has("formData"))
}

// TestCheckActionForStep 测试操作与步骤类型的匹配
func TestCheckActionForStep(t *testing.T) {
	assert.Empty(t, workflow.CheckActionForStep(workflow.ActionApprove, workflow.StepApproval))
	assert.Empty(t, workflow.CheckActionForStep(workflow.ActionSign, workflow.StepSign))
	assert.Empty(t, workflow.CheckActionForStep(workflow.ActionComplete, workflow.StepRoute))
	assert.True(t, workflow.CheckActionForStep(workflow.ActionSign, workflow.StepApproval).Has("action"))
	assert.True(t, workflow.CheckActionForStep(workflow.ActionApprove, workflow.StepNotify).Has("action"))
}
